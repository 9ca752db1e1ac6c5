/*
Package auth guards operator endpoints with a shared access token.

The usage report is the only such endpoint. Its token is configured as
usage.access_token and may be presented in a header or as a path segment:

	guard := auth.NewTokenGuard(func() string { return cfg.Usage.AccessToken }, []auth.TokenSource{
		{Type: "header", Name: "Authorization", Scheme: "Bearer"},
		{Type: "path", Name: "token"},
	})
	mux.Handle("GET /api/unique-devices-report", guard.Handle(report))

A request that carries no token gets 400; a wrong token gets 401. Tokens
are compared in constant time.
*/
package auth
