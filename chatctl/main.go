package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/docopt/docopt-go"

	"golang.org/x/term"

	"github.com/TNvsTP/NT118/client"
)

const ChatCtlVersion = "0.0.1"

const DefaultApiUrl = "https://social-media-0nzo.onrender.com/api"
const DefaultRealtimeUrl = "wss://social-media-0nzo.onrender.com/ws"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Chat control.

The default urls are:
    api_url: https://social-media-0nzo.onrender.com/api
    realtime_url: wss://social-media-0nzo.onrender.com/ws

Usage:
    chatctl login [--api_url=<api_url>] --email=<email>
    chatctl conversations [--api_url=<api_url>] --jwt=<jwt>
    chatctl chat <conversation_id> [--api_url=<api_url>]
        [--realtime_url=<realtime_url>] --jwt=<jwt>
    chatctl comments <post_id> [--api_url=<api_url>]
        [--realtime_url=<realtime_url>] --jwt=<jwt>

Options:
    -h --help                      Show this screen.
    --version                      Show version.
    --api_url=<api_url>
    --realtime_url=<realtime_url>
    --email=<email>
    --jwt=<jwt>                    Your access token.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], ChatCtlVersion)
	if err != nil {
		panic(err)
	}

	if login_, _ := opts.Bool("login"); login_ {
		login(opts)
	} else if conversations_, _ := opts.Bool("conversations"); conversations_ {
		conversations(opts)
	} else if chat_, _ := opts.Bool("chat"); chat_ {
		chat(opts)
	} else if comments_, _ := opts.Bool("comments"); comments_ {
		comments(opts)
	}
}

func login(opts docopt.Opts) {
	api := client.NewSocialApi(apiUrl(opts))
	defer api.Close()

	email, _ := opts.String("--email")

	fmt.Fprint(os.Stderr, "Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		Err.Fatalf("Could not read password: %s", err)
	}

	result, err := api.LoginSync(&client.LoginArgs{
		Email:    email,
		Password: string(passwordBytes),
	})
	if err != nil {
		Err.Fatalf("Login failed: %s", err)
	}
	if result.AccessToken == "" {
		Err.Fatalf("Login failed: %s", result.Message)
	}

	Out.Printf("%s", result.AccessToken)
}

func conversations(opts docopt.Opts) {
	api := client.NewSocialApi(apiUrl(opts))
	defer api.Close()
	jwt, _ := opts.String("--jwt")
	api.SetAccessToken(jwt)

	result, err := api.GetConversationsSync()
	if err != nil {
		Err.Fatalf("Could not list conversations: %s", err)
	}

	for _, conversation := range result.Data {
		name := conversation.Name
		if name == "" {
			names := []string{}
			for _, participant := range conversation.Participants {
				if participant.User != nil {
					names = append(names, participant.User.Name)
				}
			}
			name = strings.Join(names, ", ")
		}
		Out.Printf("%d %s", conversation.Id, name)
	}
}

func chat(opts docopt.Opts) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jwt, _ := opts.String("--jwt")
	auth := client.NewClientAuth(jwt)

	api := client.NewSocialApiWithContext(ctx, apiUrl(opts))
	defer api.Close()
	api.SetAccessToken(jwt)

	realtime := client.NewRealtimeServiceWithDefaults(ctx, realtimeUrl(opts), auth)
	realtime.Init()
	defer realtime.Disconnect()

	conversationId := requireIdArg(opts, "<conversation_id>")

	controller := client.NewChatController(ctx, api, realtime, auth, conversationId)
	defer controller.Close()

	if err := controller.LoadOlder(); err != nil {
		Err.Fatalf("Could not load messages: %s", err)
	}
	printMessages(controller)

	go func() {
		for {
			notify := controller.UpdateMonitor().NotifyChannel()
			select {
			case <-ctx.Done():
				return
			case <-notify:
				printMessages(controller)
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit":
			return
		case line == "/older":
			if err := controller.LoadOlder(); err != nil {
				Err.Printf("Load failed: %s", err)
			}
		default:
			controller.SubmitNew(line, nil)
		}
	}
}

func printMessages(controller *client.ChatController) {
	Out.Printf("----")
	for _, message := range controller.Messages() {
		sender := fmt.Sprintf("%d", message.SenderId)
		if message.Sender != nil {
			sender = message.Sender.Name
		}
		Out.Printf("[%s] %s: %s", statusMarker(message.Status()), sender, message.Content)
	}
}

func comments(opts docopt.Opts) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jwt, _ := opts.String("--jwt")
	auth := client.NewClientAuth(jwt)

	api := client.NewSocialApiWithContext(ctx, apiUrl(opts))
	defer api.Close()
	api.SetAccessToken(jwt)

	realtime := client.NewRealtimeServiceWithDefaults(ctx, realtimeUrl(opts), auth)
	realtime.Init()
	defer realtime.Disconnect()

	postId := requireIdArg(opts, "<post_id>")

	controller := client.NewCommentThreadController(ctx, api, realtime, auth, postId)
	defer controller.Close()

	if err := controller.LoadOlder(); err != nil {
		Err.Fatalf("Could not load comments: %s", err)
	}
	printComments(controller)

	go func() {
		for {
			notify := controller.UpdateMonitor().NotifyChannel()
			select {
			case <-ctx.Done():
				return
			case <-notify:
				printComments(controller)
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit":
			return
		case strings.HasPrefix(line, "/reply "):
			// /reply <comment_id> <content>
			parts := strings.SplitN(line, " ", 3)
			if len(parts) < 3 {
				Err.Printf("Usage: /reply <comment_id> <content>")
				continue
			}
			parentCommentId, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				Err.Printf("Bad comment id: %s", parts[1])
				continue
			}
			controller.SubmitNew(parts[2], &parentCommentId, nil)
		default:
			controller.SubmitNew(line, nil, nil)
		}
	}
}

func printComments(controller *client.CommentThreadController) {
	Out.Printf("----")
	var descend func(comments []*client.Comment, depth int)
	descend = func(comments []*client.Comment, depth int) {
		for _, comment := range comments {
			author := fmt.Sprintf("%d", comment.AuthorId())
			if comment.User != nil {
				author = comment.User.Name
			}
			Out.Printf(
				"%s[%s] (%d) %s: %s",
				strings.Repeat("  ", depth),
				statusMarker(comment.Status()),
				comment.Id,
				author,
				comment.Content,
			)
			descend(comment.Children, depth+1)
		}
	}
	descend(controller.Comments(), 0)
}

func statusMarker(status client.EntityStatus) string {
	switch status {
	case client.StatusPending:
		return "…"
	case client.StatusFailed:
		return "!"
	default:
		return "✓"
	}
}

func apiUrl(opts docopt.Opts) string {
	if apiUrlAny := opts["--api_url"]; apiUrlAny != nil {
		return apiUrlAny.(string)
	}
	return DefaultApiUrl
}

func realtimeUrl(opts docopt.Opts) string {
	if realtimeUrlAny := opts["--realtime_url"]; realtimeUrlAny != nil {
		return realtimeUrlAny.(string)
	}
	return DefaultRealtimeUrl
}

func requireIdArg(opts docopt.Opts, key string) client.EntityId {
	value, err := opts.String(key)
	if err != nil {
		Err.Fatalf("Missing %s", key)
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		Err.Fatalf("Bad %s: %s", key, value)
	}
	return id
}
