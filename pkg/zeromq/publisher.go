package zeromq

import "github.com/open-rover/controller/pkg/state"

// PublishStatus reports a lifecycle state change to the operator.
func (s *Service) PublishStatus(robotID, lifecycle string) error {
	return s.PublishJSON(TopicStatus, MsgTypeStatus, map[string]interface{}{
		"robot_id": robotID,
		"state":    lifecycle,
	})
}

// PublishVetoAck reports a rejected-motion acknowledgment: the operator
// pressed a key and an obstacle suppressed it.
func (s *Service) PublishVetoAck(key string, direction string) error {
	return s.PublishJSON(TopicAck, MsgTypeVetoAck, map[string]interface{}{
		"key":     key,
		"blocked": direction,
	})
}

// PublishTelemetry broadcasts a sensor snapshot.
func (s *Service) PublishTelemetry(snap state.Snapshot) error {
	return s.PublishJSON(TopicTelemetry, MsgTypeTelemetry, snap)
}

// PublishBattery broadcasts the latest battery percentage reading.
func (s *Service) PublishBattery(percentage string) error {
	return s.PublishJSON(TopicBattery, MsgTypeBattery, map[string]interface{}{
		"battery_percentage": percentage,
	})
}
