/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/ctrlc"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/blacktop/tuneid/internal/player"
)

func init() {
	rootCmd.AddCommand(listenCmd)
}

var listenCmd = &cobra.Command{
	Use:   "listen <stream-url>",
	Short: "Play a radio stream; press enter to identify the current track",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := buildStack()
		if err != nil {
			return err
		}
		defer st.close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		p := player.New(st.manager.IngestAudio)

		if err := ctrlc.Default.Run(ctx, func() error {
			return runListen(ctx, st, p, args[0])
		}); err != nil {
			if errors.As(err, &ctrlc.ErrorCtrlC{}) {
				log.Info("Interrupted, shutting down")
				cancel()
				return nil
			}
			return err
		}
		return nil
	},
}

func runListen(ctx context.Context, st *stack, p *player.Player, streamURL string) error {
	// Enter presses feed identification triggers; the reader goroutine is
	// allowed to die blocked on stdin when the context ends.
	triggers := make(chan struct{})
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case triggers <- struct{}{}:
			case <-ctx.Done():
				return
			}
		}
	}()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := p.Play(ctx, streamURL)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		fmt.Println(mutedStyle.Render("press enter to identify the current track"))
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-triggers:
				if err := st.manager.IdentifyNow(nil); err != nil {
					fmt.Println(errorStyle.Render(err.Error()))
				}
			case s := <-st.manager.Statuses():
				if out := renderStatus(s); out != "" {
					fmt.Println(out)
				}
			case ev := <-st.manager.Results():
				fmt.Println(renderEvent(ev))
			}
		}
	})

	return g.Wait()
}
