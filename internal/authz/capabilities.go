// Package authz resolves the caller's capability set once per request from
// the verified auth token, instead of re-deriving role booleans at every
// call site.
package authz

import (
	"strings"

	"firebase.google.com/go/v4/auth"
)

type Capability string

const (
	CapMessage   Capability = "message"   // participate in conversations
	CapSell      Capability = "sell"      // create listings
	CapModerate  Capability = "moderate"  // review reports, manage support threads
	CapBroadcast Capability = "broadcast" // fan out system messages
	CapErase     Capability = "erase"     // file GDPR erasure requests
)

type Capabilities struct {
	UID   string
	Email string
	set   map[Capability]bool
}

func (c Capabilities) Has(cap Capability) bool {
	return c.set[cap]
}

func (c Capabilities) IsAdmin() bool {
	return c.Has(CapModerate)
}

// Resolve computes the capability set for a verified token. Admin is
// granted by the "admin" custom claim or by membership in the configured
// admin email list (legacy deployments set emails, newer ones the claim).
func Resolve(token *auth.Token, adminEmails []string) Capabilities {
	caps := Capabilities{
		UID: token.UID,
		set: map[Capability]bool{
			CapMessage: true,
			CapSell:    true,
		},
	}
	if email, ok := token.Claims["email"].(string); ok {
		caps.Email = email
	}

	admin := false
	if v, ok := token.Claims["admin"].(bool); ok && v {
		admin = true
	}
	if !admin && caps.Email != "" {
		for _, e := range adminEmails {
			if strings.EqualFold(strings.TrimSpace(e), caps.Email) {
				admin = true
				break
			}
		}
	}
	if admin {
		caps.set[CapModerate] = true
		caps.set[CapBroadcast] = true
		caps.set[CapErase] = true
	}
	return caps
}

// ForTesting builds a capability set directly, bypassing token
// verification. Test helper only.
func ForTesting(uid string, grants ...Capability) Capabilities {
	caps := Capabilities{UID: uid, set: map[Capability]bool{CapMessage: true, CapSell: true}}
	for _, g := range grants {
		caps.set[g] = true
	}
	return caps
}
