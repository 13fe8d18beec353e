package workload

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jobshop-sim/jobshop-sim/sim"
)

// Taillard benchmark files hold one or more instances:
//
//	instance ft06
//	6 6
//	2 1 0 3 1 6 3 7 5 3 4 6
//	...
//
// Each job row alternates machine index and processing time. All jobs arrive
// at t=0; due dates are total processing time scaled by slack.

// ParseTaillard reads the named instance from r (the first instance when
// name is empty) and returns its jobs.
func ParseTaillard(r io.Reader, name string, slack float64) ([]*sim.Job, error) {
	if slack <= 0 {
		slack = DefaultDueDateSlack
	}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 2 && strings.EqualFold(fields[0], "instance") {
			if name == "" || fields[1] == name {
				return parseInstance(sc, fields[1], slack)
			}
			continue
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("taillard: no instance found")
	}
	return nil, fmt.Errorf("taillard: instance %q not found", name)
}

// LoadTaillard reads an instance from a file on disk.
func LoadTaillard(path, name string, slack float64) ([]*sim.Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseTaillard(f, name, slack)
}

func parseInstance(sc *bufio.Scanner, name string, slack float64) ([]*sim.Job, error) {
	numJobs, numMachines, err := parseHeader(sc, name)
	if err != nil {
		return nil, err
	}
	jobs := make([]*sim.Job, 0, numJobs)
	for i := 0; i < numJobs; i++ {
		if !sc.Scan() {
			return nil, fmt.Errorf("taillard %s: expected %d job rows, got %d", name, numJobs, i)
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || len(fields)%2 != 0 {
			return nil, fmt.Errorf("taillard %s: job %d: want machine/duration pairs, got %d fields", name, i, len(fields))
		}
		ops := make([]sim.Operation, 0, len(fields)/2)
		for k := 0; k+1 < len(fields); k += 2 {
			machine, err := strconv.Atoi(fields[k])
			if err != nil {
				return nil, fmt.Errorf("taillard %s: job %d: bad machine index %q", name, i, fields[k])
			}
			if machine < 0 || machine >= numMachines {
				return nil, fmt.Errorf("taillard %s: job %d: machine index %d out of range [0,%d)", name, i, machine, numMachines)
			}
			dur, err := strconv.ParseFloat(fields[k+1], 64)
			if err != nil || dur <= 0 {
				return nil, fmt.Errorf("taillard %s: job %d: bad duration %q", name, i, fields[k+1])
			}
			ops = append(ops, sim.Operation{MachineType: machine, Duration: dur})
		}
		j := sim.NewJob(i, ops, 0, 0)
		j.DueDate = slack * j.TotalProcessingTime()
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func parseHeader(sc *bufio.Scanner, name string) (numJobs, numMachines int, err error) {
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return 0, 0, fmt.Errorf("taillard %s: want 'numJobs numMachines' header, got %q", name, line)
		}
		numJobs, err = strconv.Atoi(fields[0])
		if err != nil || numJobs <= 0 {
			return 0, 0, fmt.Errorf("taillard %s: bad job count %q", name, fields[0])
		}
		numMachines, err = strconv.Atoi(fields[1])
		if err != nil || numMachines <= 0 {
			return 0, 0, fmt.Errorf("taillard %s: bad machine count %q", name, fields[1])
		}
		return numJobs, numMachines, nil
	}
	if err := sc.Err(); err != nil {
		return 0, 0, err
	}
	return 0, 0, fmt.Errorf("taillard %s: missing header", name)
}
