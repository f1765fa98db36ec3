package publisher

import (
	"encoding/json"
	"fmt"

	"sjsage522/stockscraper/internal/model"
)

// Publisher represents a service for publishing messages
type Publisher interface {
	// Publish publishes a message to the stream for topic
	Publish(topic, key string, message []byte) error

	// TrimStreams trims all streams to the configured maximum length
	TrimStreams() error

	// Close closes the publisher connection
	Close() error
}

// ItemKey is the stream field that carries an encoded item
const ItemKey = "b64_item"

// PublishItems sends each item to the stream for its kind and returns how
// many were published before the first failure
func PublishItems(p Publisher, items []model.Item) (int, error) {
	for i, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return i, fmt.Errorf("encode item %s: %w", item.Key(), err)
		}
		if err := p.Publish(string(item.Kind), ItemKey, data); err != nil {
			return i, err
		}
	}
	return len(items), nil
}
