package reconcile

import "github.com/HerbHall/alarmdesk/pkg/models"

// Classification is the local (type, severity) pair for a Zabbix priority.
type Classification struct {
	Type     models.AlarmType
	Severity models.Severity
}

// priorityTable maps Zabbix trigger priorities 0-5
// (not classified, information, warning, average, high, disaster).
var priorityTable = [...]Classification{
	0: {models.AlarmInfo, models.SeverityLow},
	1: {models.AlarmWarning, models.SeverityLow},
	2: {models.AlarmWarning, models.SeverityMedium},
	3: {models.AlarmCritical, models.SeverityHigh},
	4: {models.AlarmCritical, models.SeverityHigh},
	5: {models.AlarmCritical, models.SeverityHigh},
}

// Classify maps a priority code to its classification. Codes outside 0-5
// map to (info, low).
func Classify(priority int) Classification {
	if priority < 0 || priority >= len(priorityTable) {
		return priorityTable[0]
	}
	return priorityTable[priority]
}
