package notify

import (
	"fmt"
	"html"
)

// TicketCreated confirms receipt of a new ticket to its creator.
func TicketCreated(to, username, ticketID, subject string) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("[%s] Ticket received", ticketID),
		Body: fmt.Sprintf("Hello %s,\n\nWe received your ticket %s: %q.\nOur support team will get back to you soon.\n",
			username, ticketID, subject),
		HTMLBody: fmt.Sprintf(`<html><body><p>Hello %s,</p><p>We received your ticket <b>%s</b>: %s.</p><p>Our support team will get back to you soon.</p></body></html>`,
			html.EscapeString(username), html.EscapeString(ticketID), html.EscapeString(subject)),
	}
}

// TicketAssigned tells an assignee about new work.
func TicketAssigned(to, username, ticketID, subject string) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("[%s] Ticket assigned to you", ticketID),
		Body:    fmt.Sprintf("Hello %s,\n\nTicket %s (%q) has been assigned to you.\n", username, ticketID, subject),
		HTMLBody: fmt.Sprintf(`<html><body><p>Hello %s,</p><p>Ticket <b>%s</b> (%s) has been assigned to you.</p></body></html>`,
			html.EscapeString(username), html.EscapeString(ticketID), html.EscapeString(subject)),
	}
}

// TicketResponded tells the creator that staff answered.
func TicketResponded(to, username, ticketID, subject, preview string) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("[%s] New response on your ticket", ticketID),
		Body: fmt.Sprintf("Hello %s,\n\nThere is a new response on ticket %s (%q):\n\n%s\n",
			username, ticketID, subject, preview),
		HTMLBody: fmt.Sprintf(`<html><body><p>Hello %s,</p><p>There is a new response on ticket <b>%s</b> (%s):</p><blockquote>%s</blockquote></body></html>`,
			html.EscapeString(username), html.EscapeString(ticketID), html.EscapeString(subject), html.EscapeString(preview)),
	}
}
