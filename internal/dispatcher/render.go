package dispatcher

import (
	"strings"
	"unicode/utf8"

	"hostintel-bot/internal/catalog"
	apperrors "hostintel-bot/internal/common/errors"
	"hostintel-bot/internal/formatter"
	"hostintel-bot/internal/models"
	"hostintel-bot/internal/session"
)

// reply is rendered text plus the keyboard attached to its last message.
type reply struct {
	blocks   []string
	keyboard [][]Button
}

func textReply(text string, keyboard [][]Button) reply {
	return reply{blocks: []string{text}, keyboard: keyboard}
}

// messages packs blocks into as few messages as fit the length limit.
func (r reply) messages(chatID int64, limit int) []OutboundMessage {
	texts := pack(r.blocks, limit)
	out := make([]OutboundMessage, len(texts))
	for i, text := range texts {
		out[i] = OutboundMessage{ChatID: chatID, Text: text}
	}
	if len(out) > 0 {
		out[len(out)-1].Keyboard = r.keyboard
	}
	return out
}

func pack(blocks []string, limit int) []string {
	var (
		out  []string
		cur  strings.Builder
		size int
	)
	for _, block := range blocks {
		for _, part := range formatter.SplitMessage(block, limit) {
			n := utf8.RuneCountInString(part)
			if size > 0 && size+2+n > limit {
				out = append(out, cur.String())
				cur.Reset()
				size = 0
			}
			if size > 0 {
				cur.WriteString("\n\n")
				size += 2
			}
			cur.WriteString(part)
			size += n
		}
	}
	if size > 0 {
		out = append(out, cur.String())
	}
	return out
}

func errorReply(err *apperrors.StandardError) reply {
	return textReply(formatter.Error(err), [][]Button{backToMain()})
}

// render maps an engine outcome onto chat output.
func render(cat *catalog.Catalog, out *session.Outcome) reply {
	sess := out.Session
	switch out.Screen {
	case session.ScreenWelcome:
		return textReply(formatter.Welcome(), mainMenuKeyboard())

	case session.ScreenCategories:
		return textReply(formatter.CatalogIntro(), categoryKeyboard(cat))

	case session.ScreenTemplates:
		text := formatter.CategoryTemplates(out.Category)
		if out.Category.ID == vulnCategory {
			text = formatter.VulnTemplates()
		}
		return textReply(text, templateKeyboard(out.Templates, Button{"🔙 Back", payloadTemplates}))

	case session.ScreenFindResults:
		return textReply(formatter.FindResults(out.Keyword, out.Templates),
			templateKeyboard(out.Templates, Button{"🔙 Main Menu", payloadMain}))

	case session.ScreenParamPrompt:
		r := textReply(formatter.ParamPrompt(out.Template, sess.ParamIndex, sess.Params), cancelKeyboard())
		if sess.ParamIndex >= 0 && sess.ParamIndex < len(out.Template.Params) {
			r.keyboard = paramKeyboard(out.Template.Params[sess.ParamIndex])
		}
		if out.Err != nil {
			r.blocks = append([]string{formatter.Error(out.Err)}, r.blocks...)
		}
		return r

	case session.ScreenConfirm:
		return textReply(formatter.Confirmation(out.Template, sess.Params, out.Query),
			confirmKeyboard(out.Template, out.Query != ""))

	case session.ScreenResults:
		p := out.Page
		return reply{blocks: p.Blocks, keyboard: paginationKeyboard(p.Index, p.TotalPages, p.HasPrev, p.HasNext)}

	case session.ScreenAwait:
		return textReply(formatter.AwaitPrompt(out.Keyword), cancelKeyboard())

	case session.ScreenScanConfirm:
		kb, ok := scanConfirmKeyboard(out.Query)
		if !ok {
			return errorReply(apperrors.NewValidationFailedError("target", "the scan target is too long to confirm"))
		}
		return textReply(formatter.ScanConfirm(out.Query), kb)

	case session.ScreenScanStatusUsage:
		return textReply(formatter.ScanStatusUsage(), [][]Button{backToMain()})

	case session.ScreenCancelled:
		return textReply(formatter.Cancelled(), mainMenuKeyboard())

	case session.ScreenError:
		return errorReply(out.Err)
	}

	return renderData(out)
}

// renderData renders the result of a direct command.
func renderData(out *session.Outcome) reply {
	back := [][]Button{backToMain()}
	switch data := out.Data.(type) {
	case *models.CountResult:
		return textReply(formatter.RenderCount(data), back)
	case *models.HostInfo:
		return reply{blocks: formatter.RenderHost(data), keyboard: back}
	case []models.HostAddress:
		return textReply(formatter.RenderDNSResolve(data), back)
	case []models.ReverseEntry:
		return textReply(formatter.RenderDNSReverse(data), back)
	case *models.DomainInfo:
		return textReply(formatter.RenderDomain(data), back)
	case *models.ExploitResult:
		return reply{blocks: formatter.RenderExploits(data), keyboard: back}
	case *models.HoneyScore:
		return textReply(formatter.RenderHoneyScore(data), back)
	case *models.ScanSubmission:
		return textReply(formatter.RenderScanSubmitted(data), back)
	case *models.ScanStatus:
		return textReply(formatter.RenderScanStatus(data), back)
	case *models.AccountInfo:
		return textReply(formatter.RenderAccount(data), back)
	}
	return errorReply(apperrors.NewInternalError(errUnrenderable))
}
