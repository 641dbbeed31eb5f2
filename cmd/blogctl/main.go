package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"blogclient/internal/api"
	"blogclient/internal/app"
	"blogclient/internal/cookiestore"
	"blogclient/internal/models"
	"blogclient/internal/platform/otel"
	"blogclient/internal/posts"
	"blogclient/internal/state"
	"blogclient/internal/user"
)

const usage = `usage: blogctl [flags] <command> [args]

commands:
  posts list [-page N] [-limit N]
  posts get|upvote|downvote|view|delete <id>
  posts category <name>
  posts create -title T -content C [-category X] [-tags a,b]
  posts update <id> [-title T] [-content C] [-category X] [-tags a,b]
  login -email E -password P
  register -username U -email E -password P
  logout
  whoami
  profile [-username U] [-fullname F] [-bio B] [-avatar URL]

flags:
`

type cli struct {
	client  *api.Client
	cookies *cookiestore.Store
	jar     cookiestore.Jar
	posts   *posts.Store
	user    *user.Store
}

func main() {
	cfg, err := app.LoadClientConfig()
	if err != nil {
		app.Exitf("blogctl: %v", err)
	}

	fs := flag.NewFlagSet("blogctl", flag.ExitOnError)
	fs.StringVar(&cfg.APIURL, "api", cfg.APIURL, "backend base URL")
	fs.StringVar(&cfg.CookieDB, "cookies", cfg.CookieDB, "cookie database path")
	fs.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "per-request timeout")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "log every state transition to stderr")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	if err := run(cfg, fs.Args()); err != nil {
		app.Exitf("blogctl: %v", err)
	}
}

// run executes one command. Deferred cleanup must finish before main exits.
func run(cfg app.ClientConfig, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	shutdown, err := otel.Setup(ctx, "blogctl")
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer shutdown(context.Background())

	c, err := newCLI(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.cookies.Close()

	out, runErr := c.run(ctx, args)
	if err := c.cookies.Save(ctx, c.jar, c.client.BaseURL()); err != nil {
		log.Printf("blogctl: save cookies: %v", err)
	}
	if err := printJSON(os.Stdout, out); err != nil {
		return errors.Join(runErr, fmt.Errorf("print result: %w", err))
	}
	return runErr
}

func printJSON(w io.Writer, v any) error {
	if v == nil {
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newCLI(ctx context.Context, cfg app.ClientConfig) (*cli, error) {
	jar, err := api.NewJar()
	if err != nil {
		return nil, err
	}
	client, err := api.New(cfg.APIURL, api.NewHTTPClient(cfg.HTTPTimeout, jar))
	if err != nil {
		return nil, err
	}
	cookies, err := cookiestore.Open(cfg.CookieDB)
	if err != nil {
		return nil, err
	}
	if err := cookies.Load(ctx, jar, client.BaseURL()); err != nil {
		cookies.Close()
		return nil, err
	}

	var obs []state.Observer
	if cfg.Verbose {
		obs = append(obs, state.LogObserver{Logger: log.New(os.Stderr, "blogctl ", log.LstdFlags)})
	}
	return &cli{
		client:  client,
		cookies: cookies,
		jar:     jar,
		posts:   posts.NewStore(client, obs...),
		user:    user.NewStore(client, obs...),
	}, nil
}

// run executes one command and returns the snapshot to print.
func (c *cli) run(ctx context.Context, args []string) (any, error) {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "posts":
		if len(rest) == 0 {
			return nil, errors.New("posts: missing subcommand")
		}
		err := c.runPosts(ctx, rest[0], rest[1:])
		return c.posts.Snapshot(), err

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		email := fs.String("email", "", "account email")
		password := fs.String("password", "", "account password")
		_ = fs.Parse(rest)
		err := c.user.Login(ctx, *email, *password)
		return c.user.Snapshot(), err

	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		name := fs.String("username", "", "user name")
		email := fs.String("email", "", "account email")
		password := fs.String("password", "", "account password")
		_ = fs.Parse(rest)
		err := c.user.Register(ctx, *name, *email, *password)
		return c.user.Snapshot(), err

	case "logout":
		err := c.user.Logout(ctx)
		return c.user.Snapshot(), err

	case "whoami":
		err := c.user.FetchCurrentUser(ctx)
		return c.user.Snapshot(), err

	case "profile":
		fs := flag.NewFlagSet("profile", flag.ExitOnError)
		var in models.ProfileInput
		fs.StringVar(&in.UserName, "username", "", "new user name")
		fs.StringVar(&in.FullName, "fullname", "", "full name")
		fs.StringVar(&in.Bio, "bio", "", "short bio")
		fs.StringVar(&in.Avatar, "avatar", "", "avatar URL")
		_ = fs.Parse(rest)
		if err := c.user.FetchCurrentUser(ctx); err != nil {
			return c.user.Snapshot(), err
		}
		cur := c.user.Snapshot()
		if !cur.IsLoggedIn || cur.UserInfo == nil {
			return cur, errors.New("profile: not logged in")
		}
		err := c.user.UpdateProfile(ctx, cur.UserInfo.ID, in)
		return c.user.Snapshot(), err
	}
	return nil, fmt.Errorf("unknown command %q", cmd)
}

func (c *cli) runPosts(ctx context.Context, sub string, args []string) error {
	switch sub {
	case "list":
		fs := flag.NewFlagSet("posts list", flag.ExitOnError)
		page := fs.Int("page", 1, "page number")
		limit := fs.Int("limit", 20, "page size")
		_ = fs.Parse(args)
		return c.posts.List(ctx, *page, *limit)

	case "create":
		in, _, err := postInput("posts create", args, false)
		if err != nil {
			return err
		}
		return c.posts.Create(ctx, in)

	case "update":
		in, id, err := postInput("posts update", args, true)
		if err != nil {
			return err
		}
		return c.posts.Update(ctx, id, in)
	}

	if len(args) != 1 {
		return fmt.Errorf("posts %s: expected exactly one argument", sub)
	}
	arg := args[0]
	switch sub {
	case "get":
		return c.posts.GetOne(ctx, arg)
	case "upvote":
		return c.posts.Upvote(ctx, arg)
	case "downvote":
		return c.posts.Downvote(ctx, arg)
	case "view":
		return c.posts.IncrementView(ctx, arg)
	case "delete":
		return c.posts.Delete(ctx, arg)
	case "category":
		return c.posts.ByCategory(ctx, arg)
	}
	return fmt.Errorf("posts: unknown subcommand %q", sub)
}

// postInput parses create/update flags. With withID the first argument is
// the post id.
func postInput(name string, args []string, withID bool) (models.PostInput, string, error) {
	var id string
	if withID {
		if len(args) == 0 || strings.HasPrefix(args[0], "-") {
			return models.PostInput{}, "", fmt.Errorf("%s: missing post id", name)
		}
		id, args = args[0], args[1:]
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	var in models.PostInput
	var tags string
	fs.StringVar(&in.Title, "title", "", "post title")
	fs.StringVar(&in.Content, "content", "", "post body")
	fs.StringVar(&in.Category, "category", "", "category")
	fs.StringVar(&tags, "tags", "", "comma-separated tags")
	_ = fs.Parse(args)
	for _, t := range strings.Split(tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			in.Tags = append(in.Tags, t)
		}
	}
	if !withID && (in.Title == "" || in.Content == "") {
		return in, "", fmt.Errorf("%s: -title and -content are required", name)
	}
	return in, id, nil
}
