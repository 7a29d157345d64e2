// Package runtime is the composition root of a relay process. Open builds
// the admission controller, the broker (bridged to a backplane when one is
// configured), the ingestion pipeline, and the monitor from a Config, and
// the transport servers reach all of them through the returned Runtime.
//
//	rt, err := runtime.Open(ctx, runtime.Options{Config: config.Default(), Logger: logger})
//	if err != nil { /* handle */ }
//	defer rt.Close()
//	rt.Start(ctx)
package runtime
