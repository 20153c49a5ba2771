package orientation

import (
	"encoding/json"
	"fmt"

	"github.com/relabs-tech/hip_feedback/internal/rotation"
)

// NodeData is one sensor node's orientation in a sensor record, scalar
// first: Quat1 = w, Quat2 = x, Quat3 = y, Quat4 = z.
type NodeData struct {
	Quat1 float64 `json:"Quat1"`
	Quat2 float64 `json:"Quat2"`
	Quat3 float64 `json:"Quat3"`
	Quat4 float64 `json:"Quat4"`
}

// Frame is the per-cycle sensor record carried over MQTT.
type Frame struct {
	Pelvis *NodeData `json:"pelvis"`
	Thigh  *NodeData `json:"thigh"`
}

func (n *NodeData) rotation(role string) (rotation.Rotation, error) {
	if n == nil {
		return rotation.Rotation{}, fmt.Errorf("frame: missing %s node", role)
	}
	r, err := rotation.FromQuaternion(n.Quat1, n.Quat2, n.Quat3, n.Quat4)
	if err != nil {
		return rotation.Rotation{}, fmt.Errorf("frame: %s node: %w", role, err)
	}
	return r, nil
}

func nodeFrom(r rotation.Rotation) *NodeData {
	w, x, y, z := r.Quaternion()
	return &NodeData{Quat1: w, Quat2: x, Quat3: y, Quat4: z}
}

// DecodeFrame parses a sensor record into a Sample.
func DecodeFrame(payload []byte) (Sample, error) {
	var f Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return Sample{}, fmt.Errorf("frame: unmarshal: %w", err)
	}
	return f.Sample()
}

// Sample converts the frame; both nodes must be present and valid.
func (f Frame) Sample() (Sample, error) {
	pelvis, err := f.Pelvis.rotation(RolePelvis)
	if err != nil {
		return Sample{}, err
	}
	thigh, err := f.Thigh.rotation(RoleThigh)
	if err != nil {
		return Sample{}, err
	}
	return Sample{Pelvis: pelvis, Thigh: thigh}, nil
}

// EncodeFrame is the inverse of DecodeFrame.
func EncodeFrame(s Sample) ([]byte, error) {
	return json.Marshal(Frame{Pelvis: nodeFrom(s.Pelvis), Thigh: nodeFrom(s.Thigh)})
}
