// Package deskauth authenticates a native desktop shell against a hosted
// identity provider with OAuth Authorization Code + PKCE, driven through
// OS-level deep links instead of an in-process redirect.
//
// The shell is an embedded webview that cannot safely hold a confidential
// client secret, so the flow is a pure public-client PKCE flow: the
// authorize URL opens in the system's external browser, the provider returns
// control via a custom-scheme deep link, and the authorization code is
// exchanged with the verifier the flow kept in volatile memory.
//
//	cfg, err := deskauth.NewConfigLoader(
//	    deskauth.FileConfig(deskauth.DefaultConfigPaths("myapp")...),
//	    deskauth.EnvPrefix("MYAPP"),
//	).Load()
//	...
//	flow := deskauth.NewFlow(cfg)
//	dispatcher := deeplink.NewDispatcher(cfg.Scheme)
//	unsub := dispatcher.Listen(func(u string) { _ = flow.OnCallback(ctx, u) })
//	defer unsub()
//
//	if err := flow.BeginSignIn(ctx, "myapp://auth/callback"); err != nil { ... }
//	res := <-flow.Results()
//
// Supporting packages: pkce (verifier/challenge generation), deeplink
// (OS-URI fan-out), tokenstore (keychain persistence), bridge (downstream
// platform sessions), realtime (change-event subscriptions with backoff),
// authlog (diagnostics handlers), and authcmd (a urfave/cli command suite).
package deskauth
