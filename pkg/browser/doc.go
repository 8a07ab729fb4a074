// Package browser opens remote Playwright sessions on a browser farm.
//
// A Farm connects to the grid's websocket endpoint with the capabilities of
// one capability.Descriptor, creates a browser context sized to its viewport
// and hands out pages. Everything above this package talks to the Session
// and Page interfaces, so orchestration and page validation are tested
// against in-memory fakes without a browser.
//
// Basic usage:
//
//	farm := browser.NewFarm(browser.Options{Endpoint: cfg.Endpoint})
//	if err := farm.Initialize(); err != nil {
//		return err
//	}
//	defer farm.Shutdown()
//
//	session, err := farm.Open(ctx, descriptor)
//	if err != nil {
//		return err
//	}
//	defer session.Close()
//
// Opening sessions can be throttled with Options.OpenRate; farms commonly
// reject bursts of concurrent connects.
package browser
