/*
package dbnotify provides a backchannel from the database to push changes
out to other processes.  Writers send a NotificationEvent on
"<table>_changes" in the same transaction as the write, so listeners hear
about committed changes only.
*/
package dbnotify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
)

type NotificationEvent struct {
	Table string `json:"table"`
	// Key identifies the changed row, e.g. a run id.  Empty for singletons
	// like settings.
	Key string `json:"key,omitempty"`
}

// Channel is the LISTEN/NOTIFY channel carrying changes to table.
func Channel(table string) string {
	return table + "_changes"
}

// Payload encodes an event for pg_notify.
func Payload(table, key string) (string, error) {
	bytes, err := json.Marshal(&NotificationEvent{Table: table, Key: key})
	return string(bytes), err
}

type Consumer interface {
	TableName() string
	Consume(ctx context.Context, event *NotificationEvent)
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc struct {
	Table string
	Func  func(ctx context.Context, event *NotificationEvent)
}

func (c ConsumerFunc) TableName() string {
	return c.Table
}

func (c ConsumerFunc) Consume(ctx context.Context, event *NotificationEvent) {
	c.Func(ctx, event)
}

type DBNotifyListener struct {
	db                  *sql.DB
	tableNameToConsumer map[string]Consumer
}

func NewDBNotifyListener(db *sql.DB, consumers ...Consumer) (*DBNotifyListener, error) {
	m := make(map[string]Consumer)
	for _, c := range consumers {
		tableName := c.TableName()
		if _, exists := m[tableName]; exists {
			return nil, fmt.Errorf("duplicate consumer for table %s", tableName)
		}
		m[tableName] = c
	}

	return &DBNotifyListener{db: db, tableNameToConsumer: m}, nil
}

// Listen blocks, handing events to consumers, until ctx is done or the
// connection fails.  Consumers run one at a time, in arrival order.
func (cl *DBNotifyListener) Listen(ctx context.Context) error {
	conn, err := cl.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	var pgxConn *stdlib.Conn
	err = conn.Raw(func(driverConn any) error {
		var ok bool
		pgxConn, ok = driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("driver connection is %T, not pgx", driverConn)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to get pgx connection: %w", err)
	}

	for table := range cl.tableNameToConsumer {
		channel := Channel(table)
		if _, err := pgxConn.Conn().Exec(ctx, "LISTEN "+channel); err != nil {
			return fmt.Errorf("failed to listen on channel %s: %w", channel, err)
		}
	}

	ch := make(chan *NotificationEvent)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cl.consumeEvents(ctx, ch)
	}()
	defer wg.Wait()
	defer close(ch)

	for {
		log.Debug("(awaiting db notifications...)")
		var notification *pgconn.Notification
		if nf, err := pgxConn.Conn().WaitForNotification(ctx); err == nil {
			notification = nf
		} else {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("error waiting for notification: %w", err)
		}

		log.Debugf("(received db notification %d %s)", notification.PID, notification.Payload)
		event, err := parse(notification.Payload)
		if err != nil {
			log.Warnf("dropping notification: %v", err)
			continue
		}
		select {
		case ch <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func parse(payload string) (*NotificationEvent, error) {
	event := &NotificationEvent{}
	if err := json.Unmarshal([]byte(payload), event); err != nil {
		return nil, fmt.Errorf("can't unmarshal notification payload %q: %w", payload, err)
	}
	if event.Table == "" {
		return nil, fmt.Errorf("notification payload %q names no table", payload)
	}
	return event, nil
}

func (cl *DBNotifyListener) dispatch(ctx context.Context, event *NotificationEvent) {
	consumer, ok := cl.tableNameToConsumer[event.Table]
	if !ok {
		log.Warnf("no listener for table %s", event.Table)
		return
	}
	consumer.Consume(ctx, event)
}

func (cl *DBNotifyListener) consumeEvents(ctx context.Context, ch <-chan *NotificationEvent) {
	for {
		select {
		case <-ctx.Done():
			log.Debugf("stopping consumeEvents: %v", ctx.Err())
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			cl.dispatch(ctx, event)
		}
	}
}
