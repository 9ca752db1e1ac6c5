/*
Package tls provides the listener TLS configuration for the relay.

The session cookie is issued with SameSite=None, which browsers only accept
over HTTPS, so a relay not sitting behind a TLS terminating proxy serves
TLS itself.

# Certificate Auto-Reload

Certificates are reloaded from disk when their files change, so a renewed
certificate is picked up without a restart:

	reloader := tls.NewCertificateReloader(cfg.CertFile, cfg.KeyFile, cfg.ReloadInterval, logger)
	if err := reloader.Start(ctx); err != nil {
		return err
	}

	tlsConfig, err := tls.ServerConfig(cfg, reloader)
*/
package tls
