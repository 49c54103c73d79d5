package cmd

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/DrUlysses/Kristine-sub000/core/library"
	"github.com/DrUlysses/Kristine-sub000/core/protocol"
	"github.com/DrUlysses/Kristine-sub000/core/session"
	"github.com/DrUlysses/Kristine-sub000/model"

	"github.com/spf13/cobra"
)

var controlWait time.Duration

var controlCmd = &cobra.Command{
	Use:   "control <host:port> <play|pause|resume|next|previous|playlist|watch> [paths...]",
	Short: "Send one command to a server and print the updates it answers with",
	Long: `Connect to the server's /player channel, send the command and print
updates until --wait elapses.

  play <path>               play one file, appending it to the server playlist
  playlist <index> <paths>  replace the server playlist and start at index
  watch                     send nothing, only print updates`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		host, port, err := splitHostPort(args[0])
		if err != nil {
			return err
		}
		command, send, err := parseCommand(args[1], args[2:])
		if err != nil {
			return err
		}

		cs := session.NewControlSession()
		connected := make(chan bool, 2)
		cs.Connect(host, port, printUpdate, func(c bool) { connected <- c })
		defer cs.Disconnect()

		select {
		case ok := <-connected:
			if !ok {
				return fmt.Errorf("could not connect to %s", args[0])
			}
		case <-time.After(15 * time.Second):
			return fmt.Errorf("timed out connecting to %s", args[0])
		}

		if send {
			if err := cs.Send(command); err != nil {
				return err
			}
		}

		select {
		case <-connected:
			fmt.Println("server closed the connection")
		case <-time.After(controlWait):
		}
		return nil
	},
}

func splitHostPort(hostport string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return "", 0, fmt.Errorf("invalid server address %q: %w", hostport, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid server port %q", portStr)
	}
	return host, port, nil
}

func parseCommand(name string, args []string) (protocol.Command, bool, error) {
	switch strings.ToLower(name) {
	case "pause":
		return protocol.Pause(), true, nil
	case "resume":
		return protocol.Resume(), true, nil
	case "next":
		return protocol.Next(), true, nil
	case "previous", "prev":
		return protocol.Previous(), true, nil
	case "watch":
		return protocol.Command{}, false, nil
	case "play":
		if len(args) != 1 {
			return protocol.Command{}, false, fmt.Errorf("play needs exactly one path")
		}
		return protocol.Play(trackFor(args[0])), true, nil
	case "playlist":
		if len(args) < 2 {
			return protocol.Command{}, false, fmt.Errorf("playlist needs an index and at least one path")
		}
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return protocol.Command{}, false, fmt.Errorf("invalid playlist index %q", args[0])
		}
		tracks := make([]model.Track, len(args)-1)
		for i, p := range args[1:] {
			tracks[i] = trackFor(p)
		}
		if index < 0 || index >= len(tracks) {
			return protocol.Command{}, false, fmt.Errorf("playlist index %d outside 0..%d", index, len(tracks)-1)
		}
		return protocol.SetPlaylist(tracks, index), true, nil
	}
	return protocol.Command{}, false, fmt.Errorf("unknown command %q", name)
}

// trackFor builds a track for a path given on the command line. The server
// refreshes metadata from its own catalog.
func trackFor(path string) model.Track {
	dir := path
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		dir = path[:i]
	}
	return library.TrackFromPath(dir, path)
}

func printUpdate(u protocol.Update) {
	switch u.Type {
	case protocol.UpdNowPlaying:
		if u.Song == nil {
			fmt.Printf("#%d now playing: nothing\n", u.Seq)
			return
		}
		fmt.Printf("#%d now playing: %s (%s)\n", u.Seq, u.Song.Title, u.Song.Path)
	case protocol.UpdPlaybackState:
		state := "paused"
		if u.IsPlaying {
			state = "playing"
		}
		fmt.Printf("#%d %s\n", u.Seq, state)
	}
}

func init() {
	controlCmd.Flags().DurationVarP(&controlWait, "wait", "w", 3*time.Second, "how long to print updates after sending")
	rootCmd.AddCommand(controlCmd)
}
