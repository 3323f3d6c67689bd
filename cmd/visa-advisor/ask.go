package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor"
)

var askCmd = &cobra.Command{
	Use:   "ask <visa-type>",
	Short: "Run a consultation in the terminal",
	Long: `Asks the questions of one visa category on the terminal.

Answer with y/n. Other commands: b (back), r (restart), q (quit).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		adv, err := openAdvisor(cmd.Context(), s)
		if err != nil {
			return err
		}
		defer adv.Close()
		return runConsultation(cmd.Context(), adv, args[0], cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

type command int

const (
	cmdYes command = iota
	cmdNo
	cmdBack
	cmdRestart
	cmdQuit
	cmdInvalid
)

func parseCommand(line string) command {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "はい":
		return cmdYes
	case "n", "no", "いいえ":
		return cmdNo
	case "b", "back":
		return cmdBack
	case "r", "restart":
		return cmdRestart
	case "q", "quit", "exit":
		return cmdQuit
	default:
		return cmdInvalid
	}
}

// runConsultation drives one session from in until it finishes, the user
// quits or in is exhausted.
func runConsultation(ctx context.Context, adv *advisor.Advisor, category string, in io.Reader, out io.Writer) error {
	turn, err := adv.Start(ctx, category)
	if err != nil {
		return err
	}
	defer adv.End(turn.SessionID)

	sc := bufio.NewScanner(in)
	question := turn.NextQuestion
	for !turn.Finished && question != "" {
		fmt.Fprintf(out, "%s? [y/n/b/r/q] ", question)
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}

		c := parseCommand(sc.Text())
		switch c {
		case cmdYes, cmdNo:
			turn, err = adv.Answer(ctx, turn.SessionID, question, c == cmdYes)
			if err != nil {
				return err
			}
			question = turn.NextQuestion
		case cmdBack:
			res, err := adv.GoBack(ctx, turn.SessionID)
			if err != nil {
				return err
			}
			if res.Previous == "" {
				fmt.Fprintln(out, "nothing to go back to")
				continue
			}
			question = res.Current
		case cmdRestart:
			turn, err = adv.Restart(ctx, turn.SessionID)
			if err != nil {
				return err
			}
			question = turn.NextQuestion
		case cmdQuit:
			return nil
		default:
			fmt.Fprintln(out, "please answer y or n")
		}
	}

	if len(turn.Conclusions) == 0 {
		fmt.Fprintln(out, "no visa category applies")
		return nil
	}
	fmt.Fprintln(out, "conclusions:")
	for _, c := range turn.Conclusions {
		fmt.Fprintf(out, "  - %s\n", c)
	}
	return nil
}
