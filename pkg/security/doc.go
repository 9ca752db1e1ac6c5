/*
Package security groups the relay's access controls.

  - cookie: the signed session cookie that binds a browser to its transform
    states
  - auth: the static access token guarding the usage report
  - tls: listener TLS with certificate reload

# Session Cookie

	codec, err := cookie.NewCodec(cfg.Session.CookieSecret)
	if err != nil {
		return err
	}
	sessions := cookie.New(codec, cookie.Config{Name: cfg.Session.CookieName, MaxAge: cfg.Session.CookieMaxAge}, logger)
	handler = sessions.Middleware(handler)

# Report Token

	guard := auth.NewTokenGuard(func() string { return config.GetConfig().Usage.AccessToken }, []auth.TokenSource{
		{Type: "header", Name: "Authorization"},
		{Type: "path", Name: "token"},
	})
*/
package security
