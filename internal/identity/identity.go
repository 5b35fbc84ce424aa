// Package identity classifies client-supplied identity strings into roles.
//
// The classification is derived purely from the string's shape and is
// advisory trust only: a client can claim any identity it likes. Callers must
// never treat role=admin as a security boundary; it only selects which
// notifications a connection receives.
package identity

import (
	"regexp"
	"strings"

	"github.com/roadwatch/backend/internal/domain"
)

const (
	// DefaultAdminPrefix marks admin identities (e.g. "admin_42").
	DefaultAdminPrefix = "admin_"
	// separator is the character regular user identities carry (e.g. "user_bob").
	separator = "_"
)

// objectIDPattern matches a 24-character hexadecimal string, mirroring a
// database-assigned record identifier.
var objectIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// Classification is the result of classifying one identity string.
type Classification struct {
	Valid  bool
	Role   domain.Role
	Reason string
}

// Classifier derives a role from an identity string's shape.
type Classifier struct {
	adminPrefix string
}

// NewClassifier creates a classifier with the given admin prefix. An empty
// prefix falls back to DefaultAdminPrefix.
func NewClassifier(adminPrefix string) *Classifier {
	if adminPrefix == "" {
		adminPrefix = DefaultAdminPrefix
	}
	return &Classifier{adminPrefix: adminPrefix}
}

// Classify is a pure function of the identity's shape. Rules, in order:
// empty is invalid; the admin prefix wins; a separator or a 24-hex record
// identifier makes a regular user; anything else is rejected.
func (c *Classifier) Classify(id string) Classification {
	if id == "" {
		return Classification{Reason: "missing identity"}
	}
	if strings.HasPrefix(id, c.adminPrefix) {
		return Classification{Valid: true, Role: domain.RoleAdmin}
	}
	if strings.Contains(id, separator) || objectIDPattern.MatchString(id) {
		return Classification{Valid: true, Role: domain.RoleUser}
	}
	return Classification{Reason: "unrecognized format"}
}
