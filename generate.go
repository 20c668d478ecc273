package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

func generateCMD() *cobra.Command {
	var (
		topic string
		raw   bool
	)
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Run search, generation and persistence for one topic and print the post",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(topic) == "" {
				return errors.New("--topic is required")
			}
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			results, err := a.pipe.Search(ctx, topic)
			if err != nil {
				return err
			}
			res, err := a.pipe.Generate(ctx, topic, results)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if res.Digest != "" {
				fmt.Fprintf(out, "%s\n> %s\n\n", res.Title, res.Digest)
			}
			if raw {
				fmt.Fprintln(out, res.BlogPost)
			} else {
				renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
				if err != nil {
					return err
				}
				rendered, err := renderer.Render(res.BlogPost)
				if err != nil {
					return err
				}
				fmt.Fprint(out, rendered)
			}
			logger.Info("saved", "title", res.Title, "filename", res.Filename, "dir", a.files.Root(), "tool", res.SaveResult)
			return nil
		},
	}
	generate.Flags().StringVarP(&topic, "topic", "t", "", "blog topic")
	generate.Flags().BoolVar(&raw, "raw", false, "print markdown without terminal rendering")
	return generate
}
