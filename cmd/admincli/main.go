// Package main provides the admin CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	"google.golang.org/protobuf/types/known/structpb"

	apiconnect "github.com/osa030/guildbox/internal/api/connect"
)

var (
	app     = kingpin.New("guildbox-admincli", "guildbox admin client")
	server  = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token   = app.Flag("token", "Admin token (or set ADMIN_TOKEN env)").Envar("ADMIN_TOKEN").String()
	timeout = app.Flag("timeout", "Request timeout").Default("30s").Duration()

	// rooms command
	roomsCmd = app.Command("rooms", "List rooms").Alias("list")

	// queue command
	queueCmd  = app.Command("queue", "Show a room's queue")
	queueRoom = queueCmd.Arg("guild-id", "Guild ID").Required().String()

	pauseCmd  = app.Command("pause", "Pause playback")
	pauseRoom = pauseCmd.Arg("guild-id", "Guild ID").Required().String()

	resumeCmd  = app.Command("resume", "Resume playback")
	resumeRoom = resumeCmd.Arg("guild-id", "Guild ID").Required().String()

	skipCmd  = app.Command("skip", "Skip the current track")
	skipRoom = skipCmd.Arg("guild-id", "Guild ID").Required().String()

	stopCmd  = app.Command("stop", "Stop playback and clear the queue")
	stopRoom = stopCmd.Arg("guild-id", "Guild ID").Required().String()

	disconnectCmd  = app.Command("disconnect", "Leave the voice channel")
	disconnectRoom = disconnectCmd.Arg("guild-id", "Guild ID").Required().String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *token == "" {
		fmt.Println("Error: admin token is required (use --token or ADMIN_TOKEN env)")
		os.Exit(1)
	}

	client := apiconnect.NewAdminClient(http.DefaultClient, *server, *token)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var err error
	switch command {
	case roomsCmd.FullCommand():
		err = listRooms(ctx, client)
	case queueCmd.FullCommand():
		err = showQueue(ctx, client, *queueRoom)
	case pauseCmd.FullCommand():
		err = printResult(client.Pause(ctx, *pauseRoom))
	case resumeCmd.FullCommand():
		err = printResult(client.Resume(ctx, *resumeRoom))
	case skipCmd.FullCommand():
		err = printResult(client.Skip(ctx, *skipRoom))
	case stopCmd.FullCommand():
		err = printResult(client.Stop(ctx, *stopRoom))
	case disconnectCmd.FullCommand():
		err = printResult(client.Disconnect(ctx, *disconnectRoom))
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

func printResult(message string, err error) error {
	if err != nil {
		return err
	}
	fmt.Println(message)
	return nil
}

func listRooms(ctx context.Context, client *apiconnect.AdminClient) error {
	resp, err := client.ListRooms(ctx)
	if err != nil {
		return err
	}

	rooms := resp.GetFields()["rooms"].GetListValue().GetValues()
	fmt.Printf("Rooms (%d):\n", len(rooms))
	for _, r := range rooms {
		printRoom(r.GetStructValue())
	}
	return nil
}

func showQueue(ctx context.Context, client *apiconnect.AdminClient, roomID string) error {
	resp, err := client.GetQueue(ctx, roomID)
	if err != nil {
		return err
	}

	fmt.Println("\n=== ROOM STATUS ===")
	printRoom(resp)

	queue := resp.GetFields()["queue"].GetListValue().GetValues()
	if len(queue) == 0 {
		fmt.Println("\nQueue is empty")
		fmt.Println()
		return nil
	}
	fmt.Printf("\nQueue (%d):\n", len(queue))
	for i, v := range queue {
		fmt.Printf("  %2d. %s\n", i+1, formatTrack(v.GetStructValue()))
	}
	fmt.Println()
	return nil
}

func printRoom(s *structpb.Struct) {
	f := s.GetFields()
	fmt.Printf("  %s: status=%s connected=%v channel=%s loop=%v queued=%d\n",
		f["room_id"].GetStringValue(),
		f["status"].GetStringValue(),
		f["connected"].GetBoolValue(),
		f["channel_id"].GetStringValue(),
		f["loop"].GetBoolValue(),
		int(f["queue_size"].GetNumberValue()),
	)
	if np := f["now_playing"].GetStructValue(); np != nil {
		fmt.Printf("      now playing: %s\n", formatTrack(np))
	}
}

func formatTrack(s *structpb.Struct) string {
	f := s.GetFields()
	d := time.Duration(f["duration_sec"].GetNumberValue() * float64(time.Second))
	out := f["title"].GetStringValue()
	if d > 0 {
		out += fmt.Sprintf(" (%s)", d.Round(time.Second))
	}
	if r := f["requester"].GetStringValue(); r != "" {
		out += " - requested by " + r
	}
	return out
}
