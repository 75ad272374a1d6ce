package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/lifecycle"
)

// Bot is a stored logical bot.
type Bot struct {
	ID            string
	Name          string
	Description   string
	Secret        string
	OwnerID       string
	AutoRestart   bool
	Status        lifecycle.Status
	StatusMessage string
	ContainerID   sql.NullString
	ContainerName sql.NullString
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// InstanceID returns the bound instance ID, or "" when never deployed.
func (b *Bot) InstanceID() string {
	if !b.ContainerID.Valid {
		return ""
	}
	return b.ContainerID.String
}

// BotUpdate holds the editable fields of a bot. Nil fields are left alone.
type BotUpdate struct {
	Name        *string
	Description *string
	Secret      *string
	AutoRestart *bool
}

const botColumns = `bot_id, name, description, secret, owner_id, auto_restart,
	status, status_message, container_id, container_name, created_at, updated_at`

func (s *Store) sealSecret(plain string) (string, error) {
	if s.box == nil {
		return plain, nil
	}
	return s.box.Seal(plain)
}

func (s *Store) openSecret(stored string) (string, error) {
	if s.box == nil {
		return stored, nil
	}
	return s.box.Open(stored)
}

// CreateBot inserts bot with status stopped and no instance. Returns
// ErrDuplicate when the ID is taken.
func (s *Store) CreateBot(ctx context.Context, bot *Bot) error {
	return s.CreateBotWithSettings(ctx, bot, nil)
}

// CreateBotWithSettings is CreateBot that also stores the bot's initial
// settings. The bot and its settings are written in one transaction, so a
// failure leaves neither behind.
func (s *Store) CreateBotWithSettings(ctx context.Context, bot *Bot, settings map[string]string) error {
	secret, err := s.sealSecret(bot.Secret)
	if err != nil {
		return fmt.Errorf("seal secret: %w", err)
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO bots (bot_id, name, description, secret, owner_id, auto_restart, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bot_id) DO NOTHING
	`, bot.ID, bot.Name, bot.Description, secret, bot.OwnerID, bot.AutoRestart, lifecycle.StatusStopped, now, now)
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicate, bot.ID)
	}
	for k, v := range settings {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO bot_settings (bot_id, key, value, updated_at) VALUES (?, ?, ?, ?)`,
			bot.ID, k, v, now,
		); err != nil {
			return fmt.Errorf("create bot: setting %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create bot: %w", err)
	}

	bot.Status = lifecycle.StatusStopped
	bot.ContainerID = sql.NullString{}
	bot.ContainerName = sql.NullString{}
	bot.CreatedAt = now
	bot.UpdatedAt = now
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanBot(row scanner) (*Bot, error) {
	b := &Bot{}
	var status string
	err := row.Scan(&b.ID, &b.Name, &b.Description, &b.Secret, &b.OwnerID, &b.AutoRestart,
		&status, &b.StatusMessage, &b.ContainerID, &b.ContainerName, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Status = lifecycle.Status(status)
	if b.Secret, err = s.openSecret(b.Secret); err != nil {
		return nil, fmt.Errorf("open secret of %s: %w", b.ID, err)
	}
	return b, nil
}

// GetBot returns the bot with id, or ErrNotFound.
func (s *Store) GetBot(ctx context.Context, id string) (*Bot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+botColumns+` FROM bots WHERE bot_id = ?`, id)
	b, err := s.scanBot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get bot: %w", err)
	}
	return b, nil
}

// ListBots returns bots ordered by creation time, newest first. A non-empty
// ownerID restricts the list to that owner.
func (s *Store) ListBots(ctx context.Context, ownerID string) ([]*Bot, error) {
	query := `SELECT ` + botColumns + ` FROM bots`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at DESC, bot_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}
	defer rows.Close()

	var bots []*Bot
	for rows.Next() {
		b, err := s.scanBot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bot: %w", err)
		}
		bots = append(bots, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bots: %w", err)
	}
	return bots, nil
}

// UpdateBot applies the non-nil fields of u.
func (s *Store) UpdateBot(ctx context.Context, id string, u BotUpdate) error {
	sets := "updated_at = ?"
	args := []any{time.Now().UTC()}
	if u.Name != nil {
		sets += ", name = ?"
		args = append(args, *u.Name)
	}
	if u.Description != nil {
		sets += ", description = ?"
		args = append(args, *u.Description)
	}
	if u.Secret != nil {
		secret, err := s.sealSecret(*u.Secret)
		if err != nil {
			return fmt.Errorf("seal secret: %w", err)
		}
		sets += ", secret = ?"
		args = append(args, secret)
	}
	if u.AutoRestart != nil {
		sets += ", auto_restart = ?"
		args = append(args, *u.AutoRestart)
	}
	args = append(args, id)
	return s.execOne(ctx, "update bot", id, `UPDATE bots SET `+sets+` WHERE bot_id = ?`, args...)
}

// UpdateStatus sets the logical status and its message.
func (s *Store) UpdateStatus(ctx context.Context, id string, status lifecycle.Status, message string) error {
	return s.execOne(ctx, "update status", id, `
		UPDATE bots SET status = ?, status_message = ?, updated_at = ? WHERE bot_id = ?
	`, status, message, time.Now().UTC(), id)
}

// UpdateStatusFrom sets status and message only while the bot is still in
// status from with instanceID bound ("" for none). It reports false, and
// writes nothing, when another writer got there first or the bot is gone.
func (s *Store) UpdateStatusFrom(ctx context.Context, id string, from lifecycle.Status, instanceID string,
	to lifecycle.Status, message string,
) (bool, error) {
	var bound any
	if instanceID != "" {
		bound = instanceID
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE bots SET status = ?, status_message = ?, updated_at = ?
		WHERE bot_id = ? AND status = ? AND container_id IS ?
	`, to, message, time.Now().UTC(), id, from, bound)
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	return n == 1, nil
}

// TryMarkDeploying moves the bot to deploying unless it already is. It
// reports false when another deploy holds the bot. This is the per-bot
// deploy lock.
func (s *Store) TryMarkDeploying(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bots SET status = 'deploying', status_message = '', updated_at = ?
		WHERE bot_id = ? AND status != 'deploying'
	`, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("mark deploying: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark deploying: %w", err)
	}
	if n == 1 {
		return true, nil
	}
	if _, err := s.GetBot(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// SetInstance binds an instance to the bot and sets status in one update.
func (s *Store) SetInstance(ctx context.Context, id, instanceID, instanceName string, status lifecycle.Status) error {
	return s.execOne(ctx, "set instance", id, `
		UPDATE bots
		SET container_id = ?, container_name = ?, status = ?, status_message = '', updated_at = ?
		WHERE bot_id = ?
	`, instanceID, instanceName, status, time.Now().UTC(), id)
}

// ClearInstance unbinds the instance and sets status. status must not be
// running.
func (s *Store) ClearInstance(ctx context.Context, id string, status lifecycle.Status, message string) error {
	if status == lifecycle.StatusRunning {
		return fmt.Errorf("clear instance of %s: status running needs an instance", id)
	}
	return s.execOne(ctx, "clear instance", id, `
		UPDATE bots
		SET container_id = NULL, container_name = NULL, status = ?, status_message = ?, updated_at = ?
		WHERE bot_id = ?
	`, status, message, time.Now().UTC(), id)
}

// DeleteBot removes the bot with its settings, history and events.
func (s *Store) DeleteBot(ctx context.Context, id string) error {
	return s.execOne(ctx, "delete bot", id, `DELETE FROM bots WHERE bot_id = ?`, id)
}

// CountByStatus returns the number of bots per status.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM bots GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count bots: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{
		string(lifecycle.StatusStopped):   0,
		string(lifecycle.StatusDeploying): 0,
		string(lifecycle.StatusRunning):   0,
		string(lifecycle.StatusError):     0,
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (s *Store) execOne(ctx context.Context, op, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w: %s", op, ErrNotFound, id)
	}
	return nil
}
