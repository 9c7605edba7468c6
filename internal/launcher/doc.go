// Package launcher starts the application at container start.
//
// The launcher binds the service socket itself and hands it to a single
// application process as file descriptor 3, so the port is open before the
// interpreter has imported anything and the application never chooses its
// own address. Environment flags recorded by the finalizer are read into an
// explicit [Config] and passed to the child together with the variables of
// the application's .env file. SIGINT and SIGTERM are forwarded to the
// child, and the launcher exits with the child's status.
//
// Example usage:
//
//	cfg, err := launcher.LoadConfig("/", "/app")
//	if err != nil {
//	    return err
//	}
//
//	l := launcher.New(cfg)
//	if err := l.Start(); err != nil {
//	    return err
//	}
//	code, err := l.Wait(ctx)
package launcher
