package mail_fx

import (
	"os"
	"strconv"

	"go.uber.org/fx"

	"coinscope/internal/services"
)

var Module = fx.Provide(
	provideSMTPConfig,
	services.NewNotifyService,
)

func provideSMTPConfig() services.SMTPConfig {
	port, _ := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if port == 0 {
		port = 587
	}

	return services.SMTPConfig{
		Host:     os.Getenv("SMTP_HOST"),
		Port:     port,
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("SMTP_FROM"),
		AppName:  "Coinscope",
		RenewURL: os.Getenv("APP_BASE_URL") + "/subscription",
	}
}
