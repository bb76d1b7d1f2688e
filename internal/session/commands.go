package session

import (
	"context"
	"strings"

	"hostintel-bot/internal/catalog"
	apperrors "hostintel-bot/internal/common/errors"
	"hostintel-bot/internal/searchapi"
)

// splitList splits a command argument on commas and whitespace.
func splitList(arg string) []string {
	return strings.FieldsFunc(arg, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
}

// runCommand executes a one-shot command. Any wizard in progress is
// dropped first. Search ends in VIEWING_RESULTS; everything else ends in
// IDLE.
func (r *run) runCommand(ctx context.Context, a RunCommand) *Outcome {
	if !a.Command.IsDirect() {
		return r.inconsistent(a, "unknown command "+string(a.Command))
	}

	arg := strings.TrimSpace(a.Arg)
	r.resetTo(StateIdle)

	if arg == "" {
		switch a.Command {
		case CmdInfo:
		case CmdScanStatus:
			return &Outcome{Screen: ScreenScanStatusUsage}
		default:
			r.sess.Awaiting = a.Command
			return &Outcome{Screen: ScreenAwait, Keyword: string(a.Command)}
		}
	}

	if a.Command == CmdSearch {
		return r.execute(ctx, arg, r.engine.config.DefaultFacets, catalog.Template{})
	}
	if a.Command == CmdScan && !a.Confirmed {
		target, err := searchapi.NormalizeTarget(arg)
		if err != nil {
			r.sess.Awaiting = CmdScan
			stdErr := r.engine.errs.Handle(ctx, err, map[string]interface{}{"userId": r.sess.UserID, "command": string(CmdScan)})
			return &Outcome{Screen: ScreenError, Err: stdErr, Query: arg}
		}
		return &Outcome{Screen: ScreenScanConfirm, Query: target}
	}

	screen, data, err := r.call(ctx, a.Command, arg)
	if err != nil {
		stdErr := r.engine.errs.Handle(ctx, err, map[string]interface{}{
			"userId":  r.sess.UserID,
			"command": string(a.Command),
		})
		if stdErr.Code == apperrors.ErrCodeValidationFailed {
			// let the next message retry the same command
			r.sess.Awaiting = a.Command
		}
		return &Outcome{Screen: ScreenError, Err: stdErr, Query: arg}
	}
	return &Outcome{Screen: screen, Data: data, Query: arg}
}

func (r *run) call(ctx context.Context, cmd Command, arg string) (Screen, interface{}, error) {
	api := r.engine.api
	switch cmd {
	case CmdCount:
		res, err := api.Count(ctx, arg, r.engine.config.CountFacets)
		return ScreenCount, res, err
	case CmdHost:
		res, err := api.Host(ctx, arg)
		return ScreenHost, res, err
	case CmdDNS:
		res, err := api.ResolveDNS(ctx, splitList(arg))
		return ScreenDNSResolve, res, err
	case CmdRDNS:
		res, err := api.ReverseDNS(ctx, splitList(arg))
		return ScreenDNSReverse, res, err
	case CmdDomain:
		res, err := api.Domain(ctx, arg)
		return ScreenDomain, res, err
	case CmdExploit:
		res, err := api.Exploits(ctx, arg)
		return ScreenExploits, res, err
	case CmdHoneypot:
		res, err := api.HoneyScore(ctx, arg)
		return ScreenHoneypot, res, err
	case CmdScan:
		res, err := api.SubmitScan(ctx, arg)
		return ScreenScanSubmitted, res, err
	case CmdScanStatus:
		res, err := api.ScanStatus(ctx, arg)
		return ScreenScanStatus, res, err
	case CmdInfo:
		res, err := api.AccountInfo(ctx)
		return ScreenAccount, res, err
	}
	return ScreenError, nil, apperrors.NewInternalInconsistencyError(r.sess.State.String(), string(cmd))
}
