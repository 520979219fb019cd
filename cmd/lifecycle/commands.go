package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/portraitlab/server/internal/adapter/outbound/replicate"
	"github.com/portraitlab/server/internal/app"
	"github.com/portraitlab/server/internal/domain/artifact"
	"github.com/portraitlab/server/internal/domain/training"
	"github.com/portraitlab/server/internal/infra/database"
	"github.com/portraitlab/server/internal/model"
)

// cli runs one subcommand against a wired app.
type cli struct {
	app    *app.App
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func newCLI(a *app.App, stdout, stderr io.Writer) *cli {
	return &cli{app: a, stdout: stdout, stderr: stderr, now: time.Now}
}

func (c *cli) dispatch(ctx context.Context, name string, args []string) error {
	commands := map[string]func(context.Context, []string) error{
		"migrate":     c.migrate,
		"user":        c.createUser,
		"plan":        c.upsertPlan,
		"quota":       c.quota,
		"train":       c.train,
		"generate":    c.generate,
		"generations": c.generations,
		"trainings":   c.trainings,
		"event":       c.event,
		"sync":        c.sync,
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprint(c.stderr, usage)
		return fmt.Errorf("unknown command %q", name)
	}
	return cmd(ctx, args)
}

func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) migrate(ctx context.Context, args []string) error {
	if c.app.DB == nil {
		return errors.New("migrate needs the postgres driver")
	}
	if err := database.Migrate(ctx, c.app.DB); err != nil {
		return err
	}
	return c.print(map[string]string{"status": "migrated"})
}

func (c *cli) createUser(ctx context.Context, args []string) error {
	fs := c.flags("user")
	email := fs.String("email", "", "email address")
	name := fs.String("name", "", "display name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("-email is required")
	}

	user := &model.User{Email: *email, Name: *name}
	if err := c.app.Repos.Users.Create(ctx, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return c.print(user)
}

func (c *cli) upsertPlan(ctx context.Context, args []string) error {
	fs := c.flags("plan")
	id := fs.String("id", "", "plan id")
	name := fs.String("name", "", "plan name")
	generations := fs.Int("generations", 0, "generations per period, -1 for unlimited")
	interval := fs.String("interval", string(model.PlanIntervalMonth), "billing interval: month or year")
	price := fs.Int64("price-cents", 0, "price in cents")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" || *name == "" {
		return errors.New("-id and -name are required")
	}
	if *generations < model.UnlimitedGenerations {
		return errors.New("-generations must be -1 or more")
	}
	iv := model.PlanInterval(*interval)
	if !iv.IsValid() {
		return fmt.Errorf("invalid -interval %q", *interval)
	}

	plan := &model.Plan{
		ID:          *id,
		Name:        *name,
		Generations: *generations,
		PriceCents:  *price,
		Interval:    iv,
		Active:      true,
	}
	if err := c.app.Repos.Plans.Upsert(ctx, plan); err != nil {
		return fmt.Errorf("upsert plan: %w", err)
	}
	return c.print(plan)
}

func (c *cli) quota(ctx context.Context, args []string) error {
	fs := c.flags("quota")
	userID := fs.String("user", "", "user id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	uid, err := parseID("user", *userID)
	if err != nil {
		return err
	}

	st, err := c.app.Manager.QuotaStatus(ctx, uid)
	if err != nil {
		return err
	}
	return c.print(st)
}

func (c *cli) train(ctx context.Context, args []string) error {
	fs := c.flags("train")
	userID := fs.String("user", "", "user id")
	images := fs.String("images", "", "comma separated uploaded image ids")
	name := fs.String("name", "", "model label")
	if err := fs.Parse(args); err != nil {
		return err
	}
	uid, err := parseID("user", *userID)
	if err != nil {
		return err
	}

	var ids []uuid.UUID
	for _, raw := range strings.Split(*images, ",") {
		if raw = strings.TrimSpace(raw); raw == "" {
			continue
		}
		id, err := parseID("image", raw)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	rec, err := c.app.Manager.RequestTraining(ctx, uid, &training.SubmitInput{ImageIDs: ids, Name: *name})
	if err != nil {
		return err
	}
	return c.print(rec)
}

func (c *cli) generate(ctx context.Context, args []string) error {
	fs := c.flags("generate")
	userID := fs.String("user", "", "user id")
	prompt := fs.String("prompt", "", "prompt")
	trainingID := fs.String("training", "", "training id, empty for the base model")
	if err := fs.Parse(args); err != nil {
		return err
	}
	uid, err := parseID("user", *userID)
	if err != nil {
		return err
	}

	in := &artifact.GenerateInput{Prompt: *prompt}
	if *trainingID != "" {
		tid, err := parseID("training", *trainingID)
		if err != nil {
			return err
		}
		in.TrainingID = &tid
	}

	gen, err := c.app.Manager.RequestGeneration(ctx, uid, in)
	if err != nil {
		return err
	}
	return c.print(gen)
}

func (c *cli) generations(ctx context.Context, args []string) error {
	fs := c.flags("generations")
	userID := fs.String("user", "", "user id")
	limit := fs.Int("limit", 20, "max images")
	if err := fs.Parse(args); err != nil {
		return err
	}
	uid, err := parseID("user", *userID)
	if err != nil {
		return err
	}

	images, err := c.app.Manager.ListGenerations(ctx, uid, *limit)
	if err != nil {
		return err
	}
	return c.print(images)
}

func (c *cli) trainings(ctx context.Context, args []string) error {
	fs := c.flags("trainings")
	userID := fs.String("user", "", "user id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	uid, err := parseID("user", *userID)
	if err != nil {
		return err
	}

	records, err := c.app.Manager.ListTrainings(ctx, uid)
	if err != nil {
		return err
	}
	return c.print(records)
}

func (c *cli) event(ctx context.Context, args []string) error {
	fs := c.flags("event")
	file := fs.String("file", "", "webhook body, - for stdin")
	webhookID := fs.String("webhook-id", "", "webhook-id header, for signature checks")
	timestamp := fs.String("webhook-timestamp", "", "webhook-timestamp header")
	signature := fs.String("webhook-signature", "", "webhook-signature header")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file is required")
	}

	body, err := readPayload(*file)
	if err != nil {
		return err
	}

	if secret := c.app.Config.Replicate.WebhookSecret; secret != "" && *signature != "" {
		if err := replicate.VerifyWebhook(secret, *webhookID, *timestamp, *signature, body, c.now()); err != nil {
			return err
		}
	}

	update, err := replicate.ParseWebhook(body)
	if err != nil {
		return err
	}
	res, err := c.app.Manager.HandleProviderEvent(ctx, update)
	if err != nil {
		return err
	}
	return c.print(res)
}

func (c *cli) sync(ctx context.Context, args []string) error {
	fs := c.flags("sync")
	job := fs.String("job", "", "provider job id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *job == "" {
		return errors.New("-job is required")
	}

	res, err := c.app.Manager.SyncTraining(ctx, *job)
	if err != nil {
		return err
	}
	return c.print(res)
}

func readPayload(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return body, nil
}

func parseID(what, raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, fmt.Errorf("-%s is required", what)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id %q: %w", what, raw, err)
	}
	return id, nil
}
