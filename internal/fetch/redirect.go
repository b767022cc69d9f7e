package fetch

import (
	"net/http"
)

// redirectGuard re-runs URL safety validation against every redirect
// target before the client follows it. net/http hands CheckRedirect the
// already-resolved absolute target, which covers relative,
// protocol-relative, and absolute Location values alike.
type redirectGuard struct {
	validator    *Validator
	maxRedirects int
}

func newRedirectGuard(validator *Validator, maxRedirects int) *redirectGuard {
	if maxRedirects <= 0 {
		maxRedirects = 5
	}
	return &redirectGuard{validator: validator, maxRedirects: maxRedirects}
}

// check is installed as http.Client.CheckRedirect. Any hop that fails
// validation aborts the entire fetch with that validator error; hops are
// never silently dropped.
func (g *redirectGuard) check(req *http.Request, via []*http.Request) error {
	// via holds the initial request plus every redirect already taken,
	// so the bound trips only once more than maxRedirects hops occurred.
	if len(via) > g.maxRedirects {
		return newError(KindTooManyRedirects, "stopped after %d redirects", g.maxRedirects)
	}
	if req.URL.User != nil {
		return newError(KindInvalidURL, "redirect target carries credentials")
	}
	if _, err := g.validator.Validate(req.URL.String()); err != nil {
		return err
	}
	return nil
}
