package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/leapstack-labs/wellplan/internal/protocols"
	"github.com/spf13/cobra"
)

// asker asks the operator one question and returns the trimmed answer.
type asker func(question string) (string, error)

// newReadlineAsker returns an asker reading from the command's input.
// The returned function closes the line reader.
func newReadlineAsker(cmd *cobra.Command) (asker, func(), error) {
	rl, err := readline.NewEx(&readline.Config{
		Stdin:           io.NopCloser(cmd.InOrStdin()),
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
		InterruptPrompt: "^C",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize prompt: %w", err)
	}
	ask := func(question string) (string, error) {
		rl.SetPrompt(question)
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return "", fmt.Errorf("prompt cancelled")
		}
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
	return ask, func() { _ = rl.Close() }, nil
}

// collectPrompts asks for every prompt whose value is still missing once the
// protocol defaults are applied, storing answers in params.
func collectPrompts(p protocols.Protocol, params map[string]any, ask asker) error {
	for _, prompt := range p.Prompts() {
		effective := protocols.Merge(p.Defaults(), params)
		if prompt.Needed != nil && !prompt.Needed(effective) {
			continue
		}
		answer, err := ask(prompt.Question)
		if err != nil {
			return fmt.Errorf("asking for %s: %w", prompt.Key, err)
		}
		if answer == "" {
			return fmt.Errorf("no value given for %s", prompt.Key)
		}
		params[prompt.Key] = answer
	}
	return nil
}
