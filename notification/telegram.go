// Package notification provides implementations for various notification services
package notification

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/raykavin/solspot/core"
	"github.com/raykavin/solspot/exchange/binance"
	"github.com/raykavin/solspot/order"

	tb "gopkg.in/tucnak/telebot.v2"
)

const pollingTimeout = 10 * time.Second

// Settings holds the Telegram bot credentials and the chat IDs allowed to
// talk to it. Every ID in Users also receives notifications.
type Settings struct {
	Token string
	Users []int64
}

// StatusProvider reports the current engine state for the /status command
type StatusProvider func() string

// Telegram implements the core.NotifierWithStart interface
type Telegram struct {
	settings        Settings
	pair            string
	orderController *order.Controller
	status          StatusProvider
	defaultMenu     *tb.ReplyMarkup
	client          *tb.Bot
	log             core.Logger
}

// Option is a function that configures a telegram instance
type Option func(telegram *Telegram)

// WithStatusProvider wires the /status command to the engine
func WithStatusProvider(status StatusProvider) Option {
	return func(telegram *Telegram) {
		telegram.status = status
	}
}

// NewTelegram creates and initializes a new Telegram service for a single
// trading pair
func NewTelegram(controller *order.Controller, settings Settings, pair string,
	log core.Logger, options ...Option) (core.NotifierWithStart, error) {

	menu := &tb.ReplyMarkup{ResizeReplyKeyboard: true}
	poller := &tb.LongPoller{Timeout: pollingTimeout}

	client, err := tb.NewBot(tb.Settings{
		ParseMode: tb.ModeMarkdown,
		Token:     settings.Token,
		Poller:    newAuthMiddleware(poller, settings, log),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	setupKeyboard(menu)
	if err := setupCommands(client); err != nil {
		return nil, fmt.Errorf("failed to set commands: %w", err)
	}

	bot := &Telegram{
		orderController: controller,
		client:          client,
		settings:        settings,
		pair:            pair,
		defaultMenu:     menu,
		log:             log,
	}

	for _, option := range options {
		option(bot)
	}

	client.Handle("/help", bot.HelpHandle)
	client.Handle("/status", bot.StatusHandle)
	client.Handle("/balance", bot.BalanceHandle)
	client.Handle("/profit", bot.ProfitHandle)

	return bot, nil
}

// newAuthMiddleware creates a middleware to validate authorized users
func newAuthMiddleware(poller *tb.LongPoller, settings Settings, log core.Logger) *tb.MiddlewarePoller {
	return tb.NewMiddlewarePoller(poller, func(u *tb.Update) bool {
		if u.Message == nil || u.Message.Sender == nil {
			log.Error("message or sender is nil ", u)
			return false
		}

		if slices.Contains(settings.Users, u.Message.Sender.ID) {
			return true
		}

		log.Error("unauthorized user ", u.Message.Sender.ID)
		return false
	})
}

// setupKeyboard configures the reply keyboard layout
func setupKeyboard(menu *tb.ReplyMarkup) {
	var (
		statusBtn  = menu.Text("/status")
		profitBtn  = menu.Text("/profit")
		balanceBtn = menu.Text("/balance")
	)

	menu.Reply(menu.Row(statusBtn, balanceBtn, profitBtn))
}

// setupCommands configures available bot commands
func setupCommands(client *tb.Bot) error {
	return client.SetCommands([]tb.Command{
		{Text: "/help", Description: "Display help instructions"},
		{Text: "/status", Description: "Current position and engine state"},
		{Text: "/balance", Description: "Wallet balance"},
		{Text: "/profit", Description: "Summary of trade results"},
	})
}

// Start begins the Telegram bot and notifies all authorized users
func (t *Telegram) Start() {
	go t.client.Start()
	t.sendMessageWithOptions("Bot initialized.", t.defaultMenu)
}

// Notify sends a message to all authorized users
func (t *Telegram) Notify(text string) {
	for _, user := range t.settings.Users {
		_, err := t.client.Send(&tb.User{ID: user}, text)
		if err != nil {
			t.log.WithError(err).Error("failed to send notification")
		}
	}
}

func (t *Telegram) sendMessageWithOptions(text string, options ...any) {
	for _, user := range t.settings.Users {
		_, err := t.client.Send(&tb.User{ID: user}, text, options...)
		if err != nil {
			t.log.WithError(err).Error("failed to send notification with options")
		}
	}
}

func (t *Telegram) sendMessage(to *tb.User, text string, options ...any) {
	_, err := t.client.Send(to, text, options...)
	if err != nil {
		t.log.WithError(err).Error("failed to send message")
	}
}

// Command handlers
// ---------------

// HelpHandle displays available commands
func (t *Telegram) HelpHandle(m *tb.Message) {
	commands, err := t.client.GetCommands()
	if err != nil {
		t.log.WithError(err).Error("failed to get commands")
		t.OnError(err)
		return
	}

	lines := make([]string, 0, len(commands))
	for _, command := range commands {
		lines = append(lines, fmt.Sprintf("/%s - %s", command.Text, command.Description))
	}

	t.sendMessage(m.Sender, strings.Join(lines, "\n"))
}

// StatusHandle displays the current engine status
func (t *Telegram) StatusHandle(m *tb.Message) {
	if t.status == nil {
		t.sendMessage(m.Sender, "Status unavailable.")
		return
	}
	t.sendMessage(m.Sender, fmt.Sprintf("Status: `%s`", t.status()))
}

// BalanceHandle shows the pair's asset and quote balances
func (t *Telegram) BalanceHandle(m *tb.Message) {
	account, err := t.orderController.Account(context.Background())
	if err != nil {
		t.log.WithError(err).Error("failed to get account")
		t.OnError(err)
		return
	}

	t.sendMessage(m.Sender, t.formatBalanceMessage(account))
}

// ProfitHandle shows trading results
func (t *Telegram) ProfitHandle(m *tb.Message) {
	summary := t.orderController.Summary(t.pair)
	if summary == nil || summary.Trades() == 0 {
		t.sendMessage(m.Sender, "No trades registered.")
		return
	}

	t.sendMessage(m.Sender, fmt.Sprintf("*PAIR*: `%s`\n`%s`", t.pair, summary.String()))
}

// Event handlers
// -------------

// OnOrder notifies users about order status changes
func (t *Telegram) OnOrder(order core.Order) {
	var title string
	switch order.Status {
	case core.OrderStatusTypeFilled:
		title = fmt.Sprintf("✅ ORDER FILLED - %s", order.Pair)
	case core.OrderStatusTypeNew:
		title = fmt.Sprintf("🆕 NEW ORDER - %s", order.Pair)
	case core.OrderStatusTypeCanceled, core.OrderStatusTypeRejected:
		title = fmt.Sprintf("❌ ORDER CANCELED / REJECTED - %s", order.Pair)
	default:
		title = fmt.Sprintf("ORDER %s - %s", order.Status, order.Pair)
	}

	message := fmt.Sprintf("%s\n-----\nSide: %s\nQuantity: `%s`\nPrice: `%s`",
		title, order.Side, order.Quantity, order.Price)
	t.Notify(message)
}

// OnError notifies users about engine errors
func (t *Telegram) OnError(err error) {
	var sb strings.Builder
	sb.WriteString("🛑 ERROR\n")

	var orderError *core.OrderError
	if errors.As(err, &orderError) {
		sb.WriteString("-----\n")
		fmt.Fprintf(&sb, "Pair: %s\n", orderError.Pair)
		fmt.Fprintf(&sb, "Quantity: %s\n", orderError.Quantity)
		sb.WriteString("-----\n")
		sb.WriteString(orderError.Err.Error())
		t.Notify(sb.String())
		return
	}

	sb.WriteString("-----\n")
	sb.WriteString(err.Error())
	t.Notify(sb.String())
}

// formatBalanceMessage creates a formatted balance message for the pair
func (t *Telegram) formatBalanceMessage(account core.Account) string {
	assetTick, quoteTick := binance.SplitAssetQuote(t.pair)
	assetBalance, quoteBalance := account.GetBalance(assetTick, quoteTick)

	message := "*BALANCE*\n"
	message += fmt.Sprintf("%s: `%s`\n", assetTick, assetBalance.Total())
	message += fmt.Sprintf("%s: `%s`\n", quoteTick, quoteBalance.Total())

	quote, err := t.orderController.LastQuote(context.Background(), t.pair)
	if err == nil {
		total := assetBalance.Total().Mul(quote).Add(quoteBalance.Total())
		message += fmt.Sprintf("-----\nTotal: `%s` %s\n", total.StringFixed(4), quoteTick)
	}

	return message
}
