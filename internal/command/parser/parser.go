// Package parser implements the comment tokenizer of §4.1: a comment
// body is scanned line by line, and every line whose first token
// matches the configured bot name yields exactly one CommandResult.
package parser

import (
	"strconv"
	"strings"

	"github.com/clarketm/prbot/internal/command"
	"github.com/clarketm/prbot/internal/domain"
	"github.com/clarketm/prbot/internal/errs"
)

// Result is one line's parse outcome: either a Command or an error
// (§4.1). Exactly one of Command/Err is set.
type Result struct {
	Command command.Command
	Err     error
}

const maxReviewers = 16

// Parse scans text line by line and returns one Result per command
// line. Non-command lines are silently dropped.
func Parse(botName, text string) []Result {
	var out []Result
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] != botName {
			continue
		}
		rest := fields[1:]
		if len(rest) == 0 {
			continue
		}
		out = append(out, parseLine(rest[0], rest[1:]))
	}
	return out
}

func parseLine(verb string, args []string) Result {
	v := command.Verb(verb)
	switch v {
	case command.VerbNoqaPlus, command.VerbNoqaMinus,
		command.VerbQaPlus, command.VerbQaMinus, command.VerbQaReset,
		command.VerbNochecksOn, command.VerbNochecksOff,
		command.VerbAutomergeOn, command.VerbAutomergeOff,
		command.VerbIsAdmin, command.VerbHelp, command.VerbPing,
		command.VerbAdminHelp, command.VerbAdminSync, command.VerbAdminEnable,
		command.VerbAdminDisable, command.VerbAdminResetSummary:
		return ok(command.Command{Verb: v, Args: args})

	case command.VerbLockOn, command.VerbLockOff:
		return ok(command.Command{Verb: v, Args: args, Reason: strings.Join(args, " ")})

	case command.VerbReviewersAdd, command.VerbReviewersRemove,
		command.VerbRequiredAdd, command.VerbRequiredRemove:
		return parseUsernames(v, args)

	case command.VerbStrategySet:
		return parseStrategySet(args)
	case command.VerbStrategyClear:
		return ok(command.Command{Verb: v, Args: args})

	case command.VerbLabelsAdd, command.VerbLabelsRemove:
		if len(args) == 0 {
			return fail(&errs.IncompleteCommand{Verb: verb})
		}
		return ok(command.Command{Verb: v, Args: args})

	case command.VerbMerge:
		return parseMerge(args)

	case command.VerbGif:
		return ok(command.Command{Verb: v, Args: args, Terms: strings.Join(args, " ")})

	case command.VerbAdminAddMergeRule:
		return parseAddMergeRule(args)
	case command.VerbAdminSetDefaultNeededReviewers, command.VerbAdminSetNeededReviewers:
		return parseSetN(v, args)
	case command.VerbAdminSetDefaultMergeStrategy:
		return parseSetDefaultStrategy(args)
	case command.VerbAdminSetDefaultPRTitleRegex:
		if len(args) == 0 {
			return fail(&errs.IncompleteCommand{Verb: verb})
		}
		return ok(command.Command{Verb: v, Args: args, Regex: strings.Join(args, " ")})
	case command.VerbAdminSetDefaultQaStatusOn, command.VerbAdminSetDefaultQaStatusOff,
		command.VerbAdminSetDefaultChecksStatusOn, command.VerbAdminSetDefaultChecksStatusOff,
		command.VerbAdminSetDefaultAutomergeOn, command.VerbAdminSetDefaultAutomergeOff:
		return ok(command.Command{Verb: v, Args: args})

	default:
		return fail(&errs.UnknownCommand{Verb: verb})
	}
}

func ok(c command.Command) Result  { return Result{Command: c} }
func fail(err error) Result        { return Result{Err: err} }

func parseUsernames(v command.Verb, args []string) Result {
	if len(args) == 0 {
		return fail(&errs.InvalidUsage{Usage: string(v) + " @user [@user...]"})
	}
	if len(args) > maxReviewers {
		return fail(&errs.InvalidUsage{Usage: string(v) + " @user [@user...] (max 16)"})
	}
	users := make([]string, len(args))
	for i, a := range args {
		users[i] = strings.TrimPrefix(a, "@")
	}
	return ok(command.Command{Verb: v, Args: args, Usernames: users})
}

func parseStrategySet(args []string) Result {
	if len(args) != 1 {
		return fail(&errs.InvalidUsage{Usage: "strategy+ <merge|squash|rebase>"})
	}
	s, valid := domain.ParseMergeStrategy(args[0])
	if !valid {
		return fail(&errs.ArgumentParsingError{Detail: "unknown strategy " + args[0]})
	}
	return ok(command.Command{Verb: command.VerbStrategySet, Args: args, Strategy: s})
}

func parseMerge(args []string) Result {
	if len(args) == 0 {
		return ok(command.Command{Verb: command.VerbMerge, Args: args})
	}
	if len(args) != 1 {
		return fail(&errs.InvalidUsage{Usage: "merge [merge|squash|rebase]"})
	}
	s, valid := domain.ParseMergeStrategy(args[0])
	if !valid {
		return fail(&errs.ArgumentParsingError{Detail: "unknown strategy " + args[0]})
	}
	return ok(command.Command{Verb: command.VerbMerge, Args: args, Strategy: s})
}

func parseAddMergeRule(args []string) Result {
	if len(args) != 3 {
		return fail(&errs.InvalidUsage{Usage: "admin-add-merge-rule <base> <head> <merge|squash|rebase>"})
	}
	s, valid := domain.ParseMergeStrategy(args[2])
	if !valid {
		return fail(&errs.ArgumentParsingError{Detail: "unknown strategy " + args[2]})
	}
	return ok(command.Command{
		Verb: command.VerbAdminAddMergeRule, Args: args,
		BaseBranch: args[0], HeadBranch: args[1], Strategy: s,
	})
}

func parseSetN(v command.Verb, args []string) Result {
	if len(args) != 1 {
		return fail(&errs.InvalidUsage{Usage: string(v) + " <n>"})
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return fail(&errs.ArgumentParsingError{Detail: "invalid count " + args[0]})
	}
	return ok(command.Command{Verb: v, Args: args, N: n})
}

func parseSetDefaultStrategy(args []string) Result {
	if len(args) != 1 {
		return fail(&errs.InvalidUsage{Usage: "admin-set-default-merge-strategy <merge|squash|rebase>"})
	}
	s, valid := domain.ParseMergeStrategy(args[0])
	if !valid {
		return fail(&errs.ArgumentParsingError{Detail: "unknown strategy " + args[0]})
	}
	return ok(command.Command{Verb: command.VerbAdminSetDefaultMergeStrategy, Args: args, Strategy: s})
}
