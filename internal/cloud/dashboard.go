package cloud

// Widget type tags. The API has used both spellings.
var (
	MachineStatusWidget     = []string{"CM_MACHINE_STATUS", "MachineStatus"}
	BrewByWeightDosesWidget = []string{"CM_BREW_BY_WEIGHT_DOSES", "BrewByWeightDoses"}
	CoffeeBoilerWidget      = []string{"CM_COFFEE_BOILER", "CoffeeBoiler"}
)

// Dashboard is the machine dashboard payload: a list of typed widgets.
type Dashboard struct {
	SerialNumber string   `json:"serialNumber,omitempty"`
	Widgets      []Widget `json:"widgets"`
}

// Widget is one dashboard entry; Output carries machine-specific fields.
type Widget struct {
	WidgetType string         `json:"widget_type,omitempty"`
	Code       string         `json:"code,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
}

// Type returns the widget's type tag, preferring widget_type over code.
func (w Widget) Type() string {
	if w.WidgetType != "" {
		return w.WidgetType
	}
	return w.Code
}

// Output returns the output of the last widget matching any of the tags, or nil.
func (d Dashboard) Output(tags []string) map[string]any {
	var out map[string]any
	for _, w := range d.Widgets {
		t := w.Type()
		for _, tag := range tags {
			if t == tag {
				out = w.Output
				if out == nil {
					out = map[string]any{}
				}
			}
		}
	}
	return out
}
