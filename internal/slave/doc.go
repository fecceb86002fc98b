// Package slave drives the slaves of a master machine.
//
// A Slave is the descriptor of one remote drive. A SlaveMachine owns the
// driver of one slave and runs three loops while started: the bridge loop
// serialises every driver operation through a FIFO queue, the watcher
// forwards changed local setpoints while this machine is master, and the
// watchdog disables the drive whenever the SharedState is tripped.
//
// A failed watcher cycle increments a per-slave error counter. Once the
// counter exceeds the slave's max_errors the SharedState is set fatal and
// every SlaveMachine of the process disables its drive.
//
// The slave registry is persisted through Repository; SQLiteRepository
// stores it in the slaves table of the node database.
package slave
