package reportdef

import "fmt"

const exampleYAML = `# Report definitions for reportd
emailInfo:
  server: emailgw.pnl.gov
  from: proteomics@pnnl.gov
  fontSizeHeader: 20
  fontSizeBody: 12

reports:
  - name: Processor Status Warnings
    data:
      type: query
      server: gigasax
      database: DMS_Pipeline
      query: SELECT * FROM V_Processor_Status_Warnings
    mail:
      to: [proteomics@pnnl.gov, dms@pnnl.gov]
      subject: Processor Status Warnings
      title: "Processor status warnings:"
    frequency:
      type: TimeOfDay
      timeOfDay: "3:00 pm"
      dayofweeklist: Monday, Wednesday, Friday

  - name: Email Alerts
    data:
      type: query
      server: gigasax
      database: DMS5
      query: SELECT * FROM V_Email_Alerts WHERE alert_state = 1
    mail:
      to: proteomics@pnnl.gov
      subject: DMS Email Alerts
      title: "DMS email alerts:"
      mailIfEmpty: false
    frequency:
      type: Interval
      interval: 12
      units: hours
    postMailIdListHook:
      server: gigasax
      database: DMS5
      procedure: AckEmailAlerts
      parameter: alertIDs
      varcharlength: 4000
`

const extendedYAML = `
  - name: MTS Overdue Database Backups
    data:
      type: StoredProcedure
      server: pogo
      database: MTS_Master
      procedure: GetOverdueDatabaseBackups
    mail:
      to: proteomics@pnnl.gov
      subject: MTS Overdue Database Backups
      title: "Overdue database backups:"
    frequency:
      type: TimeOfDay
      timeOfDay: "9:00 am"
      dayofweeklist: Tuesday, Saturday

  - name: Gigasax Disk Space Report
    data:
      type: wmi
      host: gigasax
      query: SELECT DeviceID, FreeSpace, Size FROM Win32_LogicalDisk WHERE DriveType = 3
    mail:
      to: proteomics@pnnl.gov
      subject: Gigasax Disk Space
      title: "Disk space on Gigasax:"
    frequency:
      type: TimeOfDay
      timeOfDay: "9:15 am"
      dayofweeklist: Wednesday
    valuedivisor:
      value: 1073741824
      round: 2
      units: GB
`

const exampleXML = `<?xml version="1.0" encoding="utf-8"?>
<reports>
  <EmailInfo Server="emailgw.pnl.gov" From="proteomics@pnnl.gov" FontSizeHeader="20" FontSizeBody="12" />
  <report name="Processor Status Warnings">
    <data type="query" server="gigasax" database="DMS_Pipeline">SELECT * FROM V_Processor_Status_Warnings</data>
    <mail to="proteomics@pnnl.gov; dms@pnnl.gov" subject="Processor Status Warnings" title="Processor status warnings:" />
    <frequency type="TimeOfDay" timeOfDay="3:00 pm" dayofweeklist="Monday, Wednesday, Friday" />
  </report>
  <report name="Email Alerts">
    <data type="query" server="gigasax" database="DMS5">SELECT * FROM V_Email_Alerts WHERE alert_state = 1</data>
    <mail to="proteomics@pnnl.gov" subject="DMS Email Alerts" title="DMS email alerts:" mailIfEmpty="false" />
    <frequency type="Interval" interval="12" units="hours" />
    <postMailIdListHook server="gigasax" database="DMS5" procedure="AckEmailAlerts" parameter="alertIDs" varcharlength="4000" />
  </report>
`

const extendedXML = `  <report name="MTS Overdue Database Backups">
    <data type="StoredProcedure" server="pogo" database="MTS_Master">GetOverdueDatabaseBackups</data>
    <mail to="proteomics@pnnl.gov" subject="MTS Overdue Database Backups" title="Overdue database backups:" />
    <frequency type="TimeOfDay" timeOfDay="9:00 am" dayofweeklist="Tuesday, Saturday" />
  </report>
  <report name="Gigasax Disk Space Report">
    <data type="wmi" host="gigasax">SELECT DeviceID, FreeSpace, Size FROM Win32_LogicalDisk WHERE DriveType = 3</data>
    <mail to="proteomics@pnnl.gov" subject="Gigasax Disk Space" title="Disk space on Gigasax:" />
    <frequency type="TimeOfDay" timeOfDay="9:15 am" dayofweeklist="Wednesday" />
    <valuedivisor value="1073741824" round="2" units="GB" />
  </report>
`

// Example returns an example definitions file. The extended variant adds a
// stored procedure report and a WMI report with a value divisor.
func Example(format Format, extended bool) (string, error) {
	switch format {
	case FormatYAML, "":
		if extended {
			return exampleYAML + extendedYAML, nil
		}
		return exampleYAML, nil
	case FormatXML:
		doc := exampleXML
		if extended {
			doc += extendedXML
		}
		return doc + "</reports>\n", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
