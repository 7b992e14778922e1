package identity

import (
	"net/url"

	"github.com/pedidoflow/guestkit/pkg/session"
)

// Query parameters carried by storefront entry links and QR codes.
const (
	ParamStore    = "store"
	ParamTable    = "table"
	ParamDelivery = "isDelivery"
)

// URLContext is the visit context encoded in an entry URL.
type URLContext struct {
	StoreID    string
	TableID    string
	IsDelivery bool
}

// ParseURLContext extracts the visit context from an entry URL. A missing
// store parameter yields a zero context; table and delivery are mutually
// exclusive with delivery winning, since a stale table parameter on a
// delivery link must not seat the guest at a table.
func ParseURLContext(u *url.URL) URLContext {
	query := u.Query()

	ctx := URLContext{
		StoreID:    query.Get(ParamStore),
		IsDelivery: query.Get(ParamDelivery) == "true",
	}
	if !ctx.IsDelivery {
		ctx.TableID = query.Get(ParamTable)
	}

	return ctx
}

// Valid reports whether the context identifies a store.
func (c URLContext) Valid() bool {
	return c.StoreID != ""
}

// SessionContext converts the URL context to a session context.
func (c URLContext) SessionContext() session.Context {
	if c.IsDelivery || c.TableID == "" {
		return session.Context{Type: session.ContextDelivery}
	}
	return session.Context{Type: session.ContextTable, TableID: c.TableID}
}

// BuildEntryURL renders the entry link for a visit context, the inverse of
// ParseURLContext. These links are what gets printed on table QR codes.
func BuildEntryURL(base string, c URLContext) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	query := u.Query()
	query.Set(ParamStore, c.StoreID)
	if c.IsDelivery {
		query.Set(ParamDelivery, "true")
	} else if c.TableID != "" {
		query.Set(ParamTable, c.TableID)
	}

	u.RawQuery = query.Encode()
	return u.String(), nil
}

// StripParams removes the context parameters from a URL so they do not
// leak into shares, bookmarks, or analytics. Stripping an already-clean
// URL returns it unchanged.
func StripParams(u *url.URL) *url.URL {
	query := u.Query()
	query.Del(ParamStore)
	query.Del(ParamTable)
	query.Del(ParamDelivery)

	clean := *u
	clean.RawQuery = query.Encode()
	return &clean
}
