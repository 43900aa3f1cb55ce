// Package email sends plain-text transactional messages.
//
// EmailSender is implemented by the Postmark client for production and by
// LogSender, which writes messages to a slog.Logger, for development and
// tests.
//
//	var cfg email.Config
//	config.MustLoad(&cfg)
//
//	sender, err := email.NewPostmarkClient(cfg)
//	if err != nil {
//		return err
//	}
//	err = sender.SendEmail(ctx, email.Message{
//		To:       "user@example.com",
//		Subject:  "Payment failed",
//		TextBody: "We could not charge your card.",
//		Tag:      "payment_failed",
//	})
package email
