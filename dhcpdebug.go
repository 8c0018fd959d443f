package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"os"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hhubb22/herald/dhcp"
	"github.com/hhubb22/herald/dhcp/config"
	"github.com/hhubb22/herald/dhcp/v4"
)

func newDebugCommand() *cobra.Command {
	var (
		server    string
		transport string
		wait      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "debug <interface>",
		Short: "Send one DHCPDISCOVER and print every answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dst := net.IPv4bcast
			if server != "" && server != "broadcast" {
				dst = net.ParseIP(server).To4()
				if dst == nil {
					return fmt.Errorf("'%s' is not an IPv4 address", server)
				}
			}
			logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
			return debugDiscover(cmd.Context(), cmd.OutOrStdout(), args[0], dst, transport, wait, logger)
		},
	}

	cmd.Flags().StringVar(&server, "server", "broadcast", "the destination server")
	cmd.Flags().StringVar(&transport, "transport", config.TransportUDP, "'udp' or 'raw'")
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "how long to collect answers")
	return cmd
}

func debugDiscover(ctx context.Context, out io.Writer, name string, dst net.IP, transport string, wait time.Duration, logger zerolog.Logger) error {
	identity, iface, err := dhcp.IdentityForInterface(name, &config.DHCPConfig{})
	if err != nil {
		return err
	}

	conn, err := dhcp.Listen(iface, transport, logger)
	if err != nil {
		return fmt.Errorf("can't listen on '%s': %w", name, err)
	}
	defer conn.Close()

	discover, err := v4.NewDiscover(identity, rand.Uint32())
	if err != nil {
		return fmt.Errorf("can't build DHCPDISCOVER: %w", err)
	}
	if !dst.Equal(net.IPv4bcast) {
		discover.SetBroadcast(false)
	}

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	replies := make(chan []byte)
	go func() {
		defer close(replies)
		for {
			p, _, err := conn.ReadFrom()
			if err != nil {
				return
			}
			select {
			case replies <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := conn.WriteTo(v4.Encode(discover), dst); err != nil {
		return fmt.Errorf("can't send DHCPDISCOVER: %w", err)
	}
	fmt.Fprintf(out, "DHCPDISCOVER xid 0x%08x sent to %v via %s\n", discover.XID, dst, name)

	answers := 0
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(out, "%d answer(s)\n", answers)
			return nil
		case p, ok := <-replies:
			if !ok {
				return nil
			}
			m, err := v4.Decode(p)
			if err != nil || m.XID != discover.XID {
				continue
			}
			answers++
			if parsed, err := dhcpv4.FromBytes(p); err == nil {
				fmt.Fprintln(out, parsed.Summary())
			} else {
				fmt.Fprintln(out, m)
			}
		}
	}
}
