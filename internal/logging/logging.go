package logging

import (
	"io"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/winfeed/backend/internal/config"
)

// Setup initializes the global logger based on configuration
func Setup(cfg *config.LoggingConfig, env string) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	zerolog.TimeFieldFormat = time.RFC3339Nano

	var output io.Writer
	if cfg.Format == "json" || env == "production" {
		output = os.Stdout
	} else {
		// Pretty console output for development
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
			NoColor:    false,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Str("service", "winfeed").
		Logger()
}

// NewLogger creates a new logger with additional context
func NewLogger(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// RequestLogger is a Gin middleware for structured request logging
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		requestID := c.GetString("request_id")

		event := log.Info()
		if c.Writer.Status() >= 500 {
			event = log.Error()
		} else if c.Writer.Status() >= 400 {
			event = log.Warn()
		}

		event.
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", raw).
			Int("status", c.Writer.Status()).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Int("body_size", c.Writer.Size()).
			Msg("HTTP request")
	}
}

// LogRedemption logs a token redemption event
func LogRedemption(userID, tokenID string, remainingUses int, status string) {
	event := log.Info()
	if status != "success" {
		event = log.Warn()
	}
	event.
		Str("user_id", userID).
		Str("token_id", tokenID).
		Int("remaining_uses", remainingUses).
		Str("status", status).
		Msg("Token redemption")
}

// LogReferral logs a referral completion event
func LogReferral(referrerID, referredID, referralID string, rewardAmount string) {
	log.Info().
		Str("referrer_id", referrerID).
		Str("referred_id", referredID).
		Str("referral_id", referralID).
		Str("reward_amount", rewardAmount).
		Msg("Referral applied")
}

// LogConversion logs a token conversion event
func LogConversion(userID, conversionID string, tokens int64, amount string) {
	log.Info().
		Str("user_id", userID).
		Str("conversion_id", conversionID).
		Int64("tokens", tokens).
		Str("amount", amount).
		Msg("Token conversion")
}

// LogWalletDelta logs a wallet mutation through the ledger
func LogWalletDelta(userID, reason string, balanceDelta string, tokensDelta, bonusDelta int64) {
	log.Debug().
		Str("user_id", userID).
		Str("reason", reason).
		Str("balance_delta", balanceDelta).
		Int64("tokens_delta", tokensDelta).
		Int64("bonus_tokens_delta", bonusDelta).
		Msg("Wallet delta")
}

// LogSecurityEvent logs security-related events
func LogSecurityEvent(eventType, userID, clientIP, details string) {
	log.Warn().
		Str("event_type", eventType).
		Str("user_id", userID).
		Str("client_ip", clientIP).
		Str("details", details).
		Msg("Security event")
}

// LogError logs an error with context
func LogError(err error, requestID, component, operation string) {
	log.Error().
		Err(err).
		Str("request_id", requestID).
		Str("component", component).
		Str("operation", operation).
		Msg("Error occurred")
}
