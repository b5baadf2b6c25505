package grading

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrSecretKeyMissing indicates the process-wide signing key was not configured.
var ErrSecretKeyMissing = errors.New("async token secret key is not configured")

// Signer derives the keyed digests the grading service presents when calling back.
// The key is copied at construction and never changes afterwards.
type Signer struct {
	key []byte
}

// NewSigner builds a signer for the given process secret.
func NewSigner(secret string) (*Signer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrSecretKeyMissing
	}
	return &Signer{key: []byte(secret)}, nil
}

// Derive returns the hex HMAC-SHA256 of the canonical input.
func (s *Signer) Derive(canonical string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a presented token against the canonical input in constant time.
func (s *Signer) Verify(canonical, token string) bool {
	expected := s.Derive(canonical)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(token))))
}

// StudentString joins the numerically sorted profile ids with dashes, or returns "-" for nobody.
func StudentString(ids []uint) string {
	if len(ids) == 0 {
		return "-"
	}

	sorted := append([]uint(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	parts := make([]string, 0, len(sorted))
	for _, id := range sorted {
		parts = append(parts, strconv.FormatUint(uint64(id), 10))
	}
	return strings.Join(parts, "-")
}

// ParseStudentString is the inverse of StudentString.
func ParseStudentString(value string) ([]uint, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "-" {
		return []uint{}, nil
	}

	parts := strings.Split(value, "-")
	ids := make([]uint, 0, len(parts))
	for _, part := range parts {
		parsed, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid student id %q: %w", part, err)
		}
		ids = append(ids, uint(parsed))
	}
	return ids, nil
}

// ExerciseCanonical builds the canonical input binding students to an exercise
// that has no submission yet.
func ExerciseCanonical(ids []uint, exerciseID uint) string {
	return fmt.Sprintf("%s.%d", StudentString(ids), exerciseID)
}

// SubmissionCanonical builds the canonical input binding a stored submission secret.
func SubmissionCanonical(submissionID uint, storedHash string) string {
	return fmt.Sprintf("%d.%s", submissionID, storedHash)
}

// ExerciseToken returns the student string and the token for a new submission.
func (s *Signer) ExerciseToken(ids []uint, exerciseID uint) (string, string) {
	return StudentString(ids), s.Derive(ExerciseCanonical(ids, exerciseID))
}

// SubmissionToken returns the token of an existing submission.
func (s *Signer) SubmissionToken(submissionID uint, storedHash string) string {
	return s.Derive(SubmissionCanonical(submissionID, storedHash))
}
