package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/ga-webserver/backend/internal/config"
	"github.com/zhouzirui/ga-webserver/backend/internal/handler/message"
	"github.com/zhouzirui/ga-webserver/backend/internal/logging"
	assistantmodel "github.com/zhouzirui/ga-webserver/backend/internal/model/assistant"
	"github.com/zhouzirui/ga-webserver/backend/internal/service/assistant"
	"github.com/zhouzirui/ga-webserver/backend/internal/service/credentials"
	"github.com/zhouzirui/ga-webserver/backend/internal/service/transport"
)

type options struct {
	credentials string
	queries     []string
	broadcast   bool
	timeout     time.Duration
}

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "assisttester",
		Short:        "Send text queries to the Google Assistant on one conversation and print the replies",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.credentials == "" {
				return errors.New("--credentials is required")
			}
			if len(opts.queries) == 0 {
				return errors.New("at least one --query is required")
			}
			return run(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.credentials, "credentials", "", "OAuth2 凭证文件路径")
	cmd.Flags().StringArrayVarP(&opts.queries, "query", "q", nil, "文本查询，可重复，按顺序在同一会话中发送")
	cmd.Flags().BoolVar(&opts.broadcast, "broadcast", false, "以 broadcast \"...\" 形式发送")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "覆盖单次交换的超时时间")
	return cmd
}

func run(ctx context.Context, out io.Writer, opts *options) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("无法加载 .env，改用系统环境变量")
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "配置加载失败")
	}
	if err := logging.Setup(cfg.Log); err != nil {
		return err
	}

	user, err := credentials.Load(opts.credentials)
	if err != nil {
		return err
	}
	holder, err := credentials.NewHolder(context.Background(), user)
	if err != nil {
		return err
	}

	conn, err := transport.Dial(ctx, cfg.Assistant.Endpoint, cfg.Assistant.DialTimeout,
		transport.DefaultDialOptions(holder.TokenSource())...)
	if err != nil {
		return err
	}

	deadline := cfg.Assistant.Deadline
	if opts.timeout > 0 {
		deadline = opts.timeout
	}

	session := assistant.NewSession(assistantmodel.SessionConfig{
		LanguageCode:  cfg.Assistant.LanguageCode,
		DeviceModelID: cfg.Assistant.DeviceModelID,
		DeviceID:      cfg.Assistant.DeviceID,
		Deadline:      deadline,
	}, conn)
	defer session.Close()

	return converse(ctx, out, session, opts.queries, opts.broadcast)
}

type assister interface {
	Assist(ctx context.Context, textQuery string) (assistantmodel.Result, error)
}

// converse 在同一会话中按顺序发送查询并打印结果
func converse(ctx context.Context, out io.Writer, session assister, queries []string, broadcast bool) error {
	for i, query := range queries {
		textQuery := strings.TrimSpace(query)
		if broadcast {
			textQuery = message.BroadcastQuery(textQuery)
		}

		start := time.Now()
		result, err := session.Assist(ctx, textQuery)
		if err != nil {
			return errors.Wrapf(err, "query %d failed", i+1)
		}

		reply := "<no display text>"
		if result.HasDisplayText {
			reply = result.DisplayText
		}
		fmt.Fprintf(out, "> %s\n%s\n(responses=%d state=%dB elapsed=%s)\n",
			textQuery, reply, result.Responses, len(result.ConversationState), time.Since(start).Round(time.Millisecond))
	}
	return nil
}
