// Package errors classifies the failures a simulation participant can hit so that callers can
// decide between retrying, dropping the offending input, or stopping.
//
// Three classes exist:
//
//   - Transient: broker unavailable, publish timeout, cancelled context. Retry later.
//   - Invalid: a message that fails its schema or a malformed payload. Drop it and continue.
//   - Fatal: a configuration or registration conflict. Stop the process.
//
// Errors are classified either explicitly, by wrapping with WrapTransient, WrapInvalid or
// WrapFatal, or implicitly through the standard sentinels declared here:
//
//	if err := client.Publish(ctx, topic, data); err != nil {
//	    return errors.WrapTransient(err, "Machine", "ProcessEpoch", "publish station state")
//	}
//
//	if errors.IsInvalid(err) {
//	    logger.Debug("dropping message", "error", err)
//	    return
//	}
//
// The Wrap helpers produce messages in the form "component.method: action failed: cause" and keep
// the cause reachable through errors.Is and errors.As.
package errors
