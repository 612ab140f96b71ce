package notification

import (
	"fmt"
	"time"

	extErrors "github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ContentType of an encoded Message on the wire
const ContentType = "application/x-protobuf"

// Encode serializes msg as a protobuf Struct
func Encode(msg *Message) ([]byte, error) {
	data := make(map[string]interface{}, len(msg.Data))
	for k, v := range msg.Data {
		data[k] = v
	}
	pb, err := structpb.NewStruct(map[string]interface{}{
		"recipient":  msg.Recipient,
		"template":   string(msg.Template),
		"created_at": msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		"data":       data,
	})
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot convert notification into protobuf")
	}
	return proto.Marshal(pb)
}

// Decode is the inverse of Encode. Numbers in Data come back as float64
func Decode(b []byte) (*Message, error) {
	var pb structpb.Struct
	if err := proto.Unmarshal(b, &pb); err != nil {
		return nil, extErrors.Wrap(err, "Cannot decode notification")
	}
	fields := pb.GetFields()
	recipient := fields["recipient"].GetStringValue()
	if len(recipient) == 0 {
		return nil, fmt.Errorf("notification has no recipient")
	}
	msg := &Message{
		Recipient: recipient,
		Template:  Template(fields["template"].GetStringValue()),
		Data:      Data(fields["data"].GetStructValue().AsMap()),
	}
	if created := fields["created_at"].GetStringValue(); len(created) > 0 {
		t, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, extErrors.Wrap(err, "Invalid notification timestamp")
		}
		msg.CreatedAt = t
	}
	return msg, nil
}
