package handlers

import (
	"strconv"

	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

const pageStyle = `<style>body{font-family:-apple-system,BlinkMacSystemFont,sans-serif;max-width:800px;margin:0 auto;padding:20px;color:#333}h1{color:#1a1a1a}h2{color:#444;margin-top:30px}</style>`

// LegalHandler serves the static pages the chat client links to. The limits
// shown are the ones the server enforces.
type LegalHandler struct {
	dailyNextLimit int
	banThreshold   int
}

func NewLegalHandler(dailyNextLimit, banThreshold int) *LegalHandler {
	return &LegalHandler{dailyNextLimit: dailyNextLimit, banThreshold: banThreshold}
}

func (h *LegalHandler) PrivacyPolicy(c *fiber.Ctx) error {
	return c.Type("html").SendString(`<!DOCTYPE html>
<html><head><title>Privacy Policy - Anonymous Chat</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
` + pageStyle + `
</head><body>
<h1>Privacy Policy</h1>
<h2>Information We Keep</h2>
<p>We store your messaging platform id, the gender and age you choose to share, your partner filter and usage counters (chats, messages, skips).</p>
<h2>Messages</h2>
<p>Messages are relayed to your partner as they are sent. We do not store message content, only a count.</p>
<h2>Anonymity</h2>
<p>Your partner never sees your id. Reports you file are linked to your id so abuse can be reviewed.</p>
</body></html>`)
}

func (h *LegalHandler) TermsOfService(c *fiber.Ctx) error {
	return c.Type("html").SendString(`<!DOCTYPE html>
<html><head><title>Chat Rules - Anonymous Chat</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
` + pageStyle + `
</head><body>
<h1>Chat Rules</h1>
<h2>User Conduct</h2>
<p>No harassment, sexual content, spam or scams. Your partner can report you for any of these.</p>
<h2>Reports and Bans</h2>
<p>An account that receives ` + strconv.Itoa(h.banThreshold) + ` reports is banned automatically and removed from its current chat.</p>
<h2>Skipping</h2>
<p>Free accounts can skip to a new partner ` + strconv.Itoa(h.dailyNextLimit) + ` times a day. Premium accounts skip without limit and can filter partners by gender and age.</p>
</body></html>`)
}

// Help lists the chat commands for clients that render their own menu.
func (h *LegalHandler) Help(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"commands": []fiber.Map{
			{"command": "search", "description": "Find a stranger"},
			{"command": "next", "description": "Skip to a new stranger"},
			{"command": "stop", "description": "End the chat"},
			{"command": "report", "description": "Report your partner"},
			{"command": "me", "description": "Your profile and stats"},
		},
		"report_reasons":   services.ReportReasons,
		"daily_next_limit": h.dailyNextLimit,
	})
}
