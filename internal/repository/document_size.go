package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sensei-edu/sensei-api/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
)

// MaxDocumentBytes is the single-document ceiling of the session store.
const MaxDocumentBytes = 16 * 1024 * 1024

var ErrDocumentTooLarge = errors.New("session document too large")

var documentTooLargeMarkers = []string{
	"document too large",
	"too large",
	"bsonobj size",
	"exceeds maximum",
	"exceeds the maximum",
	"row is too big",
	"value too long",
}

// DocumentSize returns the encoded size of a session document.
func DocumentSize(doc *domain.TeacherSession) (int, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("encode session document: %w", err)
	}
	return len(raw), nil
}

// IsDocumentTooLarge reports whether err is a size-class storage failure.
func IsDocumentTooLarge(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDocumentTooLarge) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range documentTooLargeMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
