package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	// Telegram transport.
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.base_url", "https://api.telegram.org")
	viper.SetDefault("telegram.poll_timeout", 30*time.Second)

	// Record store (the workbook shared with the web dashboard).
	viper.SetDefault("store.path", "~/.medbot/medconnect.xlsx")

	// Attachment staging.
	viper.SetDefault("files.dir", "~/.medbot/uploads/medical_files")
	viper.SetDefault("files.max_bytes", int64(16*1024*1024))

	// Optional keyword overrides (yaml).
	viper.SetDefault("keywords.path", "")
}
