package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// DocumentID identifies one version of one document family.
type DocumentID uuid.UUID

func NewDocumentID() DocumentID {
	return DocumentID(uuid.New())
}

// ParseDocumentID validates and returns a DocumentID.
// Construct via this at trust boundaries; direct casting bypasses validation.
func ParseDocumentID(s string) (DocumentID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return DocumentID{}, fmt.Errorf("invalid document id: %w", err)
	}
	return DocumentID(u), nil
}

func (d DocumentID) String() string {
	return uuid.UUID(d).String()
}

func (d DocumentID) IsNil() bool {
	return uuid.UUID(d) == uuid.Nil
}

// MarshalText makes DocumentID render as its canonical UUID string in JSON.
func (d DocumentID) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *DocumentID) UnmarshalText(text []byte) error {
	parsed, err := ParseDocumentID(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// WorkflowID identifies a live workflow instance attached to a document.
type WorkflowID uuid.UUID

func NewWorkflowID() WorkflowID {
	return WorkflowID(uuid.New())
}

func (w WorkflowID) String() string {
	return uuid.UUID(w).String()
}

func (w WorkflowID) IsNil() bool {
	return uuid.UUID(w) == uuid.Nil
}

func (w WorkflowID) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// FamilyKey is the stable base identifier shared by every version of a
// document (e.g. "POL-1"). It never changes across versions.
type FamilyKey string

func (k FamilyKey) String() string {
	return string(k)
}

func (k FamilyKey) IsNil() bool {
	return k == ""
}

// ActorID identifies a user resolved by the external identity provider.
// It is a string to support various upstream identification schemes.
type ActorID string

func (a ActorID) String() string {
	return string(a)
}

func (a ActorID) IsNil() bool {
	return a == ""
}
