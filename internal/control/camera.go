package control

import (
	"fmt"

	"github.com/wintersim/muonio/pkg/geom"
	"github.com/wintersim/muonio/pkg/sim"
)

// SensorOption is one selectable camera or lidar.
type SensorOption struct {
	Blueprint string
	Name      string
}

// CameraSensors are the sensors cycled with N and selected with 1-9.
var CameraSensors = []SensorOption{
	{"sensor.camera.rgb", "Camera RGB"},
	{"sensor.camera.depth", "Camera Depth (Raw)"},
	{"sensor.camera.depth", "Camera Depth (Gray Scale)"},
	{"sensor.camera.depth", "Camera Depth (Logarithmic Gray Scale)"},
	{"sensor.camera.semantic_segmentation", "Camera Semantic Segmentation (Raw)"},
	{"sensor.camera.semantic_segmentation", "Camera Semantic Segmentation (CityScapes Palette)"},
	{"sensor.lidar.ray_cast", "Lidar (Ray-Cast)"},
	{"sensor.camera.dvs", "Dynamic Vision Sensor"},
	{"sensor.camera.rgb", "Camera RGB Distorted"},
}

// cameraTransforms are the mount points cycled with TAB, relative to the
// vehicle.
var cameraTransforms = []geom.Transform{
	{Location: geom.Location{X: -5.5, Z: 2.5}, Rotation: geom.Rotation{Pitch: 8}},
	{Location: geom.Location{X: 1.6, Z: 1.7}},
	{Location: geom.Location{X: 5.5, Y: 1.5, Z: 1.5}},
	{Location: geom.Location{X: -8, Z: 6}, Rotation: geom.Rotation{Pitch: 6}},
	{Location: geom.Location{X: -1, Y: -0.4, Z: 1.2}},
}

// CameraManager owns the camera attached to the player.
type CameraManager struct {
	world          sim.World
	hud            *HUD
	parent         sim.ActorID
	sensor         sim.ActorID
	index          int
	transformIndex int
	recording      bool
	spawned        bool
}

// NewCameraManager prepares a camera for parent. No sensor is spawned until
// SetSensor.
func NewCameraManager(w sim.World, parent sim.ActorID, hud *HUD) *CameraManager {
	return &CameraManager{world: w, hud: hud, parent: parent}
}

// Index is the selected sensor.
func (c *CameraManager) Index() int { return c.index }

// TransformIndex is the selected mount point.
func (c *CameraManager) TransformIndex() int { return c.transformIndex }

// Sensor is the selected sensor option.
func (c *CameraManager) Sensor() SensorOption { return CameraSensors[c.index] }

// Recording reports whether images are being recorded.
func (c *CameraManager) Recording() bool { return c.recording }

// ToggleCamera moves the camera to the next mount point.
func (c *CameraManager) ToggleCamera() error {
	c.transformIndex = (c.transformIndex + 1) % len(cameraTransforms)
	return c.SetSensor(c.index, false, true)
}

// SpecificCameraAngle moves the camera to mount point i.
func (c *CameraManager) SpecificCameraAngle(i int) error {
	c.transformIndex = ((i % len(cameraTransforms)) + len(cameraTransforms)) % len(cameraTransforms)
	return c.SetSensor(c.index, false, true)
}

// NextSensor selects the next sensor.
func (c *CameraManager) NextSensor() error {
	return c.SetSensor(c.index+1, true, false)
}

// SetSensor selects sensor index (wrapping). The camera actor is respawned
// when the blueprint changes or force is set.
func (c *CameraManager) SetSensor(index int, notify, force bool) error {
	index %= len(CameraSensors)
	respawn := !c.spawned || force || CameraSensors[index].Blueprint != CameraSensors[c.index].Blueprint
	if respawn {
		if err := c.destroySensor(); err != nil {
			return err
		}
		id, err := spawnSensor(c.world, CameraSensors[index].Blueprint, c.parent, cameraTransforms[c.transformIndex])
		if err != nil {
			return err
		}
		c.sensor, c.spawned = id, true
	}
	if notify {
		c.hud.Notification(CameraSensors[index].Name)
	}
	c.index = index
	return nil
}

// ToggleRecording starts or stops recording images.
func (c *CameraManager) ToggleRecording() {
	c.recording = !c.recording
	state := "Off"
	if c.recording {
		state = "On"
	}
	c.hud.Notification(fmt.Sprintf("Recording %s", state))
}

func (c *CameraManager) destroySensor() error {
	if !c.spawned {
		return nil
	}
	c.spawned = false
	if err := c.world.Destroy(c.sensor); err != nil && !isGone(err) {
		return fmt.Errorf("failed to destroy camera: %w", err)
	}
	return nil
}

// Destroy removes the camera actor.
func (c *CameraManager) Destroy() error {
	return c.destroySensor()
}
