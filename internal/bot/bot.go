package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/sirupsen/logrus"

	"tapfarm-backend/internal/config"
	"tapfarm-backend/internal/services"
)

type Bot struct {
	Instance *telego.Bot
	ledger   services.Ledger
	engine   *services.RewardEngine
	cfg      *config.Config
}

func NewBot(cfg *config.Config, ledger services.Ledger, engine *services.RewardEngine) (*Bot, error) {
	tgBot, err := telego.NewBot(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		Instance: tgBot,
		ledger:   ledger,
		engine:   engine,
		cfg:      cfg,
	}, nil
}

func (b *Bot) Start(ctx context.Context) error {
	updates, err := b.Instance.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	handler, err := th.NewBotHandler(b.Instance, updates)
	if err != nil {
		return fmt.Errorf("failed to create bot handler: %w", err)
	}

	// /start and /start <referrerId>
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		message := update.Message
		from := message.From
		userID := strconv.FormatInt(from.ID, 10)

		referrerID := ParseStartArg(message.Text)
		if referrerID == userID {
			// Self-referral carries no attribution; treat it as a plain /start.
			referrerID = ""
		}

		acc, created, err := b.ledger.GetOrCreate(ctx.Context(), userID, from.FirstName, from.LastName, referrerID)
		if err != nil {
			logrus.WithError(err).WithField("user_id", userID).Error("failed to get/create user")
			_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(message.Chat.ID),
				"Something went wrong, please try again later."))
			return nil
		}

		if _, _, err := services.ProcessLogin(ctx.Context(), b.ledger, b.engine, userID, time.Now()); err != nil {
			logrus.WithError(err).WithField("user_id", userID).Warn("login evaluation failed on /start")
		}

		keyboard := tu.InlineKeyboard(
			tu.InlineKeyboardRow(
				tu.InlineKeyboardButton("Launch").WithWebApp(&telego.WebAppInfo{
					URL: LaunchURL(b.cfg.WebAppURL, userID),
				}),
			),
		)

		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
			tu.ID(message.Chat.ID),
			fmt.Sprintf("Welcome, %s! Click the button below to check your stats.", acc.FirstName),
		).WithReplyMarkup(keyboard))

		if created && acc.ReferredBy != "" {
			b.notifyReferrer(ctx.Context(), acc.ReferredBy, acc.FirstName, acc.LastName)
		}
		return nil
	}, th.CommandEqual("start"))

	// /referral
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		message := update.Message
		userID := strconv.FormatInt(message.From.ID, 10)

		username := b.cfg.BotUsername
		if username == "" {
			if info, err := ctx.Bot().GetMe(ctx.Context()); err == nil {
				username = info.Username
			}
		}

		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
			tu.ID(message.Chat.ID),
			fmt.Sprintf("Share your referral link: %s", ReferralLink(username, userID)),
		))
		return nil
	}, th.CommandEqual("referral"))

	handler.Start()
	return nil
}

// notifyReferrer tells the referrer their bonus landed. Delivery failures are
// logged and swallowed: the bonus itself was already granted by the ledger.
func (b *Bot) notifyReferrer(ctx context.Context, referrerID, firstName, lastName string) {
	chatID, err := strconv.ParseInt(referrerID, 10, 64)
	if err != nil {
		logrus.WithField("referrer_id", referrerID).Warn("referrer id is not a chat id, skipping notification")
		return
	}

	name := strings.TrimSpace(firstName + " " + lastName)
	_, err = b.Instance.SendMessage(ctx, tu.Message(tu.ID(chatID),
		fmt.Sprintf("You referred %s and earned a reward!", name)))
	if err != nil {
		logrus.WithError(err).WithField("referrer_id", referrerID).Warn("failed to notify referrer")
	}
}

// ParseStartArg extracts the referrer id from a "/start <arg>" message.
// Returns "" when the command has no argument.
func ParseStartArg(text string) string {
	parts := strings.Fields(text)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// ReferralLink builds the shareable deep link for a user.
func ReferralLink(botUsername, userID string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", botUsername, userID)
}

// LaunchURL appends the user id to the mini-app entry URL.
func LaunchURL(base, userID string) string {
	separator := "?"
	if strings.Contains(base, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%suserId=%s", base, separator, userID)
}
