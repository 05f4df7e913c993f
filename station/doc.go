// Package station implements the epoch behaviour of a simulated charging station.
//
// Every epoch the station announces itself with a StationState message carrying its
// StationID and MaxPower, waits for the PowerRequirement addressed to that StationID,
// and answers with a PowerOutput carrying the requested power. The Machine type holds
// this state and plugs into simulation.Driver as a Participant:
//
//	machine, err := station.NewMachine(cfg, station.Dependencies{
//		Registry:  reg,
//		Publisher: client,
//		IDs:       ids,
//		Reporter:  status,
//	})
//	driver, err := simulation.NewDriver(driverCfg, machine, driverDeps)
//	machine.SetWake(driver.Wake)
//
// Requests for other stations, other epochs, or repeated requests within an epoch are
// ignored and counted by outcome. A failed send leaves the epoch state untouched so the
// next poll retries it.
package station
