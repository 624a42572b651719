package control

import (
	"github.com/wintersim/muonio/pkg/sim"
)

// Preset is a named weather.
type Preset struct {
	Name    string
	Weather sim.Weather
}

// WeatherPresets are the presets cycled with C. The first one is selected at
// startup.
func WeatherPresets() []Preset {
	return []Preset{
		{Name: "Clear Noon", Weather: sim.Weather{
			Cloudiness: 5, SunAltitudeAngle: 45, FogDistance: 100,
			Temperature: 2, Humidity: 40,
		}},
		{Name: "Cold Clear Morning", Weather: sim.Weather{
			Cloudiness: 10, SunAltitudeAngle: 10, SunAzimuthAngle: 120, FogDistance: 100,
			Temperature: -15, Humidity: 60, IceAmount: 1,
		}},
		{Name: "Light Snow", Weather: sim.Weather{
			Cloudiness: 60, Precipitation: 30, WindIntensity: 10, SunAltitudeAngle: 20,
			FogDensity: 10, FogDistance: 60, Temperature: -5, SnowAmount: 40,
			ParticleSize: 1.5, Humidity: 75,
		}},
		{Name: "Heavy Snowfall", Weather: sim.Weather{
			Cloudiness: 90, Precipitation: 80, PrecipitationDeposits: 50, WindIntensity: 30,
			SunAltitudeAngle: 15, FogDensity: 30, FogDistance: 40, Temperature: -8,
			SnowAmount: 80, ParticleSize: 3, Humidity: 85,
		}},
		{Name: "Blizzard", Weather: sim.Weather{
			Cloudiness: 100, Precipitation: 100, PrecipitationDeposits: 80, WindIntensity: 100,
			SunAltitudeAngle: 10, FogDensity: 60, FogDistance: 15, Temperature: -20,
			SnowAmount: 100, IceAmount: 2, ParticleSize: 5, Humidity: 90,
		}},
		{Name: "Freezing Fog", Weather: sim.Weather{
			Cloudiness: 70, SunAltitudeAngle: 5, FogDensity: 80, FogDistance: 10,
			Wetness: 40, Temperature: -3, IceAmount: 3, Humidity: 100,
		}},
		{Name: "Polar Night", Weather: sim.Weather{
			Cloudiness: 20, SunAltitudeAngle: -30, FogDistance: 100,
			Temperature: -25, SnowAmount: 30, IceAmount: 2, Humidity: 50,
		}},
		{Name: "Slush Thaw", Weather: sim.Weather{
			Cloudiness: 80, Precipitation: 40, PrecipitationDeposits: 70, SunAltitudeAngle: 25,
			FogDistance: 80, Wetness: 80, Temperature: 1, SnowAmount: 20, Humidity: 95,
		}},
	}
}

// Slider ids.
const (
	SliderTemperature   = "temperature"
	SliderPrecipitation = "precipitation"
	SliderSnowAmount    = "snow_amount"
	SliderIceAmount     = "ice_amount"
	SliderParticleSize  = "particle_size"
	SliderFogDensity    = "fog_density"
	SliderFogDistance   = "fog_distance"
	SliderWind          = "wind_intensity"
	SliderHumidity      = "humidity"
	SliderCloudiness    = "cloudiness"
	SliderSunAltitude   = "sun_altitude"
	SliderWetness       = "wetness"
	SliderDeposits      = "precipitation_deposits"
)

type sliderSpec struct {
	id       string
	label    string
	min, max float64
	field    func(w *sim.Weather) *float64
}

var sliderSpecs = []sliderSpec{
	{SliderTemperature, "Temperature", -40, 40, func(w *sim.Weather) *float64 { return &w.Temperature }},
	{SliderPrecipitation, "Precipitation", 0, 100, func(w *sim.Weather) *float64 { return &w.Precipitation }},
	{SliderSnowAmount, "Snow amount", 0, 100, func(w *sim.Weather) *float64 { return &w.SnowAmount }},
	{SliderIceAmount, "Road ice", 0, 5, func(w *sim.Weather) *float64 { return &w.IceAmount }},
	{SliderParticleSize, "Particle size", 0, 7, func(w *sim.Weather) *float64 { return &w.ParticleSize }},
	{SliderFogDensity, "Fog", 0, 100, func(w *sim.Weather) *float64 { return &w.FogDensity }},
	{SliderFogDistance, "Fog distance", 0, 100, func(w *sim.Weather) *float64 { return &w.FogDistance }},
	{SliderWind, "Wind", 0, 100, func(w *sim.Weather) *float64 { return &w.WindIntensity }},
	{SliderHumidity, "Humidity", 0, 100, func(w *sim.Weather) *float64 { return &w.Humidity }},
	{SliderCloudiness, "Cloudiness", 0, 100, func(w *sim.Weather) *float64 { return &w.Cloudiness }},
	{SliderSunAltitude, "Sun altitude", -90, 90, func(w *sim.Weather) *float64 { return &w.SunAltitudeAngle }},
	{SliderWetness, "Wetness", 0, 100, func(w *sim.Weather) *float64 { return &w.Wetness }},
	{SliderDeposits, "Deposits", 0, 100, func(w *sim.Weather) *float64 { return &w.PrecipitationDeposits }},
}

// WeatherFromHUD builds the weather the HUD sliders describe. Fields without
// a slider keep their value from base.
func WeatherFromHUD(h *HUD, base sim.Weather) sim.Weather {
	w := base
	for _, s := range h.Sliders {
		if s.spec.field != nil {
			*s.spec.field(&w) = s.Value
		}
	}
	return w
}
