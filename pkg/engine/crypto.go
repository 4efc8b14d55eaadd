package engine

import (
	"github.com/bobboyms/docengine/internal/engineerr"
	"github.com/bobboyms/docengine/pkg/document"
)

// EncryptField replaces the value at path with its AES-256-GCM-sealed
// ciphertext, using (collection, docID) as additional authenticated
// data so a sealed blob can't be copy-pasted onto a different
// document's field undetected. Returns ArgumentInvalidError if no
// encryption key was configured.
func (e *Engine) EncryptField(collection, docID string, doc *document.Document, path string) error {
	if e.crypto == nil {
		return &engineerr.ArgumentInvalidError{Argument: "encryption", Reason: "no key configured"}
	}
	val, ok := document.GetPath(doc.Data, path)
	if !ok {
		return &engineerr.ArgumentInvalidError{Argument: "path", Reason: "field not present"}
	}
	plaintext, err := val.ToJSON()
	if err != nil {
		return err
	}
	sealed, err := e.crypto.Encrypt(plaintext, aad(collection, docID))
	if err != nil {
		return err
	}
	updated, err := document.SetPath(doc.Data, path, document.NewBytes(sealed))
	if err != nil {
		return err
	}
	doc.Data = updated
	return nil
}

// DecryptField reverses EncryptField, replacing the sealed blob at path
// with the plaintext value it was built from.
func (e *Engine) DecryptField(collection, docID string, doc *document.Document, path string) error {
	if e.crypto == nil {
		return &engineerr.ArgumentInvalidError{Argument: "encryption", Reason: "no key configured"}
	}
	val, ok := document.GetPath(doc.Data, path)
	if !ok {
		return &engineerr.ArgumentInvalidError{Argument: "path", Reason: "field not present"}
	}
	sealed, ok := val.Bytes()
	if !ok {
		return &engineerr.ArgumentInvalidError{Argument: "path", Reason: "field is not an encrypted blob"}
	}
	plaintext, err := e.crypto.Decrypt(sealed, aad(collection, docID))
	if err != nil {
		return err
	}
	restored, err := document.FromJSON(plaintext)
	if err != nil {
		return err
	}
	updated, err := document.SetPath(doc.Data, path, restored)
	if err != nil {
		return err
	}
	doc.Data = updated
	return nil
}

func aad(collection, docID string) []byte {
	return []byte(collection + ":" + docID)
}
